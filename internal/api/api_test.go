package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/MBenz12/vault-x/internal/allowlist"
	"github.com/MBenz12/vault-x/internal/client"
	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/message"
	"github.com/MBenz12/vault-x/internal/metrics"
	"github.com/MBenz12/vault-x/internal/pda"
	"github.com/MBenz12/vault-x/internal/program"
	"github.com/MBenz12/vault-x/internal/vaulterr"
)

type testServer struct {
	t           *testing.T
	bank        *ledger.Bank
	client      *client.Client
	http        *httptest.Server
	initializer solana.PrivateKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		t:           t,
		bank:        ledger.NewBank(ledger.NewMemoryStore()),
		initializer: solana.NewWallet().PrivateKey,
	}
	m := metrics.New()
	ts.bank.Register(pda.ProgramID, program.New(
		program.WithInitializer(ts.initializer.PublicKey()),
		program.WithMetrics(m),
	))
	ts.bank.Register(allowlist.ProgramID, allowlist.Program{})
	ts.client = client.New("", client.WithSource(client.NewBankSource(ts.bank)))
	ts.http = httptest.NewServer(NewServer(ts.bank, ts.client, m, nil).Handler())
	t.Cleanup(ts.http.Close)
	return ts
}

func (ts *testServer) do(method, path string, body any) (int, []byte) {
	ts.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, rd)
	require.NoError(ts.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	return resp.StatusCode, out
}

func (ts *testServer) airdrop(key solana.PublicKey, sol string) {
	ts.t.Helper()
	status, body := ts.do(http.MethodPost, "/airdrop", map[string]string{"pubkey": key.String(), "sol": sol})
	require.Equal(ts.t, http.StatusOK, status, string(body))
}

func (ts *testServer) submit(signers []solana.PrivateKey, ixs ...solana.Instruction) (int, []byte) {
	ts.t.Helper()
	tx, err := solana.NewTransaction(ixs, solana.Hash{1}, solana.TransactionPayer(signers[0].PublicKey()))
	require.NoError(ts.t, err)
	require.NoError(ts.t, client.SignTransaction(tx, signers...))
	encoded, err := tx.ToBase64()
	require.NoError(ts.t, err)
	return ts.do(http.MethodPost, "/tx", map[string]string{"transaction": encoded})
}

func (ts *testServer) mustProcess(signers []solana.PublicKey, ixs ...solana.Instruction) {
	ts.t.Helper()
	_, err := ts.bank.Process(context.Background(), ledger.Transaction{Instructions: ixs, Signers: signers})
	require.NoError(ts.t, err)
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestAirdropAndAccount(t *testing.T) {
	ts := newTestServer(t)
	key := solana.NewWallet().PublicKey()
	ts.airdrop(key, "1.5")

	status, body := ts.do(http.MethodGet, "/accounts/"+key.String(), nil)
	require.Equal(t, http.StatusOK, status)
	acct := decode[map[string]interface{}](t, body)
	require.EqualValues(t, 1_500_000_000, acct["lamports"])
	require.Equal(t, "1.5 SOL", acct["sol"])
	require.Equal(t, solana.SystemProgramID.String(), acct["owner"])

	status, _ = ts.do(http.MethodGet, "/accounts/"+solana.NewWallet().PublicKey().String(), nil)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(http.MethodGet, "/accounts/not-a-key", nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(http.MethodPost, "/airdrop", map[string]string{"pubkey": key.String(), "sol": "0.0000000001"})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestSubmitTransfer(t *testing.T) {
	ts := newTestServer(t)
	payer := solana.NewWallet().PrivateKey
	to := solana.NewWallet().PublicKey()
	ts.airdrop(payer.PublicKey(), "1")

	status, body := ts.submit([]solana.PrivateKey{payer}, system.NewTransferInstruction(1000, payer.PublicKey(), to).Build())
	require.Equal(t, http.StatusOK, status, string(body))
	receipt := decode[ReceiptView](t, body)
	require.Empty(t, receipt.Err)
	require.NotEmpty(t, receipt.Signature)

	acct, err := ts.bank.Account(context.Background(), to)
	require.NoError(t, err)
	require.EqualValues(t, 1000, acct.Lamports)

	status, body = ts.do(http.MethodGet, "/receipts?limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, decode[[]ReceiptView](t, body))

	status, _ = ts.do(http.MethodPost, "/tx", map[string]string{"transaction": "%%%"})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestSubmitMapsProgramErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.airdrop(ts.initializer.PublicKey(), "1")
	treasury := solana.NewWallet().PublicKey()

	ix, err := ts.client.VaultConfigInit(ts.initializer.PublicKey(), ts.initializer.PublicKey(), treasury, 1000)
	require.NoError(t, err)
	status, body := ts.submit([]solana.PrivateKey{ts.initializer}, ix)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = ts.do(http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, status)
	cfg := decode[map[string]interface{}](t, body)
	require.EqualValues(t, 1000, cfg["creationFee"])
	require.Equal(t, treasury.String(), cfg["treasury"])

	impostor := solana.NewWallet().PrivateKey
	ts.airdrop(impostor.PublicKey(), "1")
	ix, err = ts.client.VaultConfigInit(impostor.PublicKey(), impostor.PublicKey(), treasury, 0)
	require.NoError(t, err)
	status, body = ts.submit([]solana.PrivateKey{impostor}, ix)
	require.Equal(t, http.StatusForbidden, status)
	resp := decode[errorResponse](t, body)
	require.Equal(t, vaulterr.ErrUnauthorized.Code, resp.Code)
	require.Equal(t, "Unauthorized", resp.Name)
	require.Equal(t, "authorization", resp.Class)
	require.NotEmpty(t, resp.Logs)
}

func TestVaultEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	authority := solana.NewWallet().PublicKey()
	admin := solana.NewWallet().PublicKey()
	founders := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}
	for _, k := range append([]solana.PublicKey{ts.initializer.PublicKey(), authority, admin}, founders...) {
		_, err := ts.bank.Airdrop(ctx, k, 10*solana.LAMPORTS_PER_SOL)
		require.NoError(t, err)
	}

	ix, err := ts.client.VaultConfigInit(ts.initializer.PublicKey(), authority, authority, 0)
	require.NoError(t, err)
	ts.mustProcess([]solana.PublicKey{ts.initializer.PublicKey()}, ix)

	tree := solana.NewWallet().PublicKey()
	size := allowlist.TreeAccountSize(3, 4)
	create := system.NewCreateAccountInstruction(ts.bank.Rent().MinimumBalance(size), uint64(size), allowlist.ProgramID, authority, tree).Build()
	initTree, err := allowlist.NewInitTreeInstruction(tree, authority, 3, 4)
	require.NoError(t, err)
	ts.mustProcess([]solana.PublicKey{authority, tree}, create, initTree)

	createKey := solana.NewWallet().PublicKey()
	ix, vault, err := ts.client.CreateVault(client.CreateVaultParams{
		CreateKey:     createKey,
		Administrator: admin,
		Treasury:      authority,
		AllowlistTree: tree,
		Threshold:     2,
		Founders:      founders,
	})
	require.NoError(t, err)
	ts.mustProcess([]solana.PublicKey{createKey, admin}, ix)

	status, body := ts.do(http.MethodGet, "/vaults/"+vault.String(), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	view := decode[VaultView](t, body)
	require.EqualValues(t, 2, view.FounderThreshold)
	require.Len(t, view.Founders, 2)
	require.Equal(t, tree.String(), view.AllowlistTree)

	fund, err := ts.client.Resolver().Fund(vault)
	require.NoError(t, err)
	require.Equal(t, fund.Address.String(), view.Fund)

	status, body = ts.do(http.MethodGet, "/accounts/"+vault.String(), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	require.Equal(t, "vault", decode[map[string]interface{}](t, body)["kind"])
	status, body = ts.do(http.MethodGet, "/accounts/"+tree.String(), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	require.NotContains(t, decode[map[string]interface{}](t, body), "kind")

	msg, err := message.Compile(fund.Address, system.NewTransferInstruction(1, fund.Address, admin).Build())
	require.NoError(t, err)
	ix, _, err = ts.client.CreateFounderTransaction(vault, founders[0], 1, 0, msg)
	require.NoError(t, err)
	ts.mustProcess([]solana.PublicKey{founders[0]}, ix)

	status, body = ts.do(http.MethodGet, fmt.Sprintf("/vaults/%s/transactions", vault), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	txs := decode[[]transactionView](t, body)
	require.Len(t, txs, 1)
	require.Equal(t, "founder", txs[0].Kind)
	require.Equal(t, "active", txs[0].Status)
	require.EqualValues(t, 1, txs[0].Index)
	require.Len(t, txs[0].Message.Instructions, 1)
	require.Equal(t, solana.SystemProgramID.String(), txs[0].Message.Instructions[0].ProgramID)

	status, _ = ts.do(http.MethodGet, "/vaults/"+solana.NewWallet().PublicKey().String(), nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestInspectMessage(t *testing.T) {
	ts := newTestServer(t)
	fund := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	msg, err := message.Compile(fund, system.NewTransferInstruction(5, fund, to).Build())
	require.NoError(t, err)
	raw, err := message.Encode(msg)
	require.NoError(t, err)

	for _, req := range []map[string]string{
		{"message": base64.StdEncoding.EncodeToString(raw)},
		{"message": base58.Encode(raw), "encoding": EncodingBase58},
	} {
		status, body := ts.do(http.MethodPost, "/messages/inspect", req)
		require.Equal(t, http.StatusOK, status, string(body))
		view := decode[messageView](t, body)
		require.Len(t, view.AccountKeys, 3)
		require.Equal(t, fund.String(), view.AccountKeys[0].Address)
		require.Equal(t, "writable signer", view.AccountKeys[0].Permission)
		require.Equal(t, []string{fund.String(), to.String()}, view.Instructions[0].Accounts)
	}

	status, body := ts.do(http.MethodPost, "/messages/inspect", map[string]string{
		"message": base64.StdEncoding.EncodeToString(append(raw, 0)),
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, vaulterr.ErrMessageDecode.Name, decode[errorResponse](t, body).Name)
}

func TestMetricsAndHealth(t *testing.T) {
	ts := newTestServer(t)
	payer := solana.NewWallet().PrivateKey
	ts.airdrop(payer.PublicKey(), "1")
	status, _ := ts.submit([]solana.PrivateKey{payer}, system.NewTransferInstruction(1, payer.PublicKey(), solana.NewWallet().PublicKey()).Build())
	require.Equal(t, http.StatusOK, status)

	status, body := ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), `vaultx_ledger_transactions_total{result="ok"} 1`)

	status, body = ts.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, pda.ProgramID.String(), decode[map[string]interface{}](t, body)["programID"])
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		vaulterr.ErrMalformedMessage:                                http.StatusBadRequest,
		fmt.Errorf("wrapped: %w", vaulterr.ErrFounderNotFound):      http.StatusForbidden,
		vaulterr.ErrStaleTransaction:                                http.StatusConflict,
		vaulterr.ErrInvalidRoleCount:                                http.StatusUnprocessableEntity,
		fmt.Errorf("%w: x", client.ErrAccountNotFound):              http.StatusNotFound,
		fmt.Errorf("instruction 0: %w", ledger.ErrMissingSignature): http.StatusForbidden,
		fmt.Errorf("instruction 0: %w", ledger.ErrLamportOverflow):  http.StatusUnprocessableEntity,
		fmt.Errorf("boom"):                                          http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestNodeClient(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	node := NewNodeClient(ts.http.URL + "/")

	payer := solana.NewWallet().PrivateKey
	_, err := node.Airdrop(ctx, payer.PublicKey(), solana.LAMPORTS_PER_SOL)
	require.NoError(t, err)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(10, payer.PublicKey(), solana.NewWallet().PublicKey()).Build()},
		solana.Hash{2},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	require.NoError(t, client.SignTransaction(tx, payer))
	receipt, err := node.Submit(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, tx.Signatures[0].String(), receipt.Signature)

	ix, err := ts.client.VaultConfigInit(payer.PublicKey(), payer.PublicKey(), payer.PublicKey(), 0)
	require.NoError(t, err)
	tx, err = solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{3}, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)
	require.NoError(t, client.SignTransaction(tx, payer))
	_, err = node.Submit(ctx, tx)
	require.ErrorIs(t, err, vaulterr.ErrUnauthorized)

	_, err = node.Vault(ctx, solana.NewWallet().PublicKey())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
