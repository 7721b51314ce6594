package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/allowlist"
	"github.com/MBenz12/vault-x/internal/api"
	"github.com/MBenz12/vault-x/internal/client"
	"github.com/MBenz12/vault-x/internal/config"
	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/message"
	"github.com/MBenz12/vault-x/internal/pda"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestPDACommand(t *testing.T) {
	createKey := solana.NewWallet().PublicKey()
	out := run(t, "pda", createKey.String(), "--index", "3", "--ephemeral", "1")

	r := pda.NewResolver()
	vault, err := r.Vault(createKey)
	require.NoError(t, err)
	fund, err := r.Fund(vault.Address)
	require.NoError(t, err)
	tx, err := r.FounderTransaction(vault.Address, 3)
	require.NoError(t, err)

	require.Contains(t, out, vault.Address.String())
	require.Contains(t, out, fund.Address.String())
	require.Contains(t, out, tx.Address.String())
	require.Contains(t, out, "ephemeral 0 of "+tx.Address.String())
}

func TestMessageTransferAndInspect(t *testing.T) {
	vault := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	encoded := strings.TrimSpace(run(t, "message", "transfer", "--vault", vault.String(), "--to", to.String(), "--sol", "0.25"))
	require.NotEmpty(t, encoded)

	out := run(t, "message", "inspect", encoded)
	fund, err := pda.NewResolver().Fund(vault)
	require.NoError(t, err)
	require.Contains(t, out, "Accounts (3):")
	require.Contains(t, out, fund.Address.String()+" (writable signer)")
	require.Contains(t, out, to.String()+" (writable)")
	require.Contains(t, out, "Instructions (1):")
	require.Contains(t, out, "program "+solana.SystemProgramID.String())
}

func TestMessageInspectRejectsGarbage(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"message", "inspect", "--encoding", "base64", "AAAA"})
	require.Error(t, cmd.Execute())
}

func TestNewNodeRunsPrograms(t *testing.T) {
	a := &app{cfg: config.Default(), log: zap.NewNop()}
	initializer := solana.NewWallet().PublicKey()
	a.cfg.Initializer = initializer.String()

	bank, c := a.newNode(ledger.NewMemoryStore(), nil)
	ctx := context.Background()
	_, err := bank.Airdrop(ctx, initializer, solana.LAMPORTS_PER_SOL)
	require.NoError(t, err)

	ix, err := c.VaultConfigInit(initializer, initializer, initializer, 42)
	require.NoError(t, err)
	_, err = bank.Process(ctx, ledger.Transaction{Instructions: []solana.Instruction{ix}, Signers: []solana.PublicKey{initializer}})
	require.NoError(t, err)

	cfg, err := c.FetchConfig(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 42, cfg.CreationFee)
}

func TestAirdropCommand(t *testing.T) {
	a := &app{cfg: config.Default(), log: zap.NewNop()}
	bank, c := a.newNode(ledger.NewMemoryStore(), nil)
	srv := httptest.NewServer(api.NewServer(bank, c, nil, nil).Handler())
	defer srv.Close()

	key := solana.NewWallet().PublicKey()
	out := run(t, "airdrop", key.String(), "0.5", "--node", srv.URL)
	require.Contains(t, out, "Airdropped 0.5 SOL")

	acct, err := bank.Account(context.Background(), key)
	require.NoError(t, err)
	require.EqualValues(t, solana.LAMPORTS_PER_SOL/2, acct.Lamports)
}

func TestMessageEncodeFromJSON(t *testing.T) {
	fund := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	data, err := system.NewTransferInstruction(7, fund, to).Build().Data()
	require.NoError(t, err)
	input := `[{"programId":"` + solana.SystemProgramID.String() + `","accounts":[` +
		`{"pubkey":"` + fund.String() + `","isSigner":true,"isWritable":true},` +
		`{"pubkey":"` + to.String() + `","isSigner":false,"isWritable":true}],` +
		`"data":"` + base58.Encode(data) + `"}]`

	cmd := NewRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs([]string{"message", "encode", "--fund", fund.String()})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	raw, err := base58.Decode(lines[0])
	require.NoError(t, err)
	msg, err := message.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, []solana.PublicKey{fund, to, solana.SystemProgramID}, msg.AccountKeys)
	require.Equal(t, fmt.Sprintf("size %d bytes", len(raw)), lines[1])
}

func TestShowVaultAndTransaction(t *testing.T) {
	a := &app{cfg: config.Default(), log: zap.NewNop()}
	initializer := solana.NewWallet().PublicKey()
	a.cfg.Initializer = initializer.String()
	bank, c := a.newNode(ledger.NewMemoryStore(), nil)
	ctx := context.Background()

	admin, authority := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	founders := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}
	for _, k := range append([]solana.PublicKey{initializer, admin, authority}, founders...) {
		_, err := bank.Airdrop(ctx, k, solana.LAMPORTS_PER_SOL)
		require.NoError(t, err)
	}
	process := func(signers []solana.PublicKey, ixs ...solana.Instruction) {
		t.Helper()
		_, err := bank.Process(ctx, ledger.Transaction{Instructions: ixs, Signers: signers})
		require.NoError(t, err)
	}

	ix, err := c.VaultConfigInit(initializer, authority, authority, 0)
	require.NoError(t, err)
	process([]solana.PublicKey{initializer}, ix)

	tree := solana.NewWallet().PublicKey()
	size := allowlist.TreeAccountSize(3, 4)
	initTree, err := allowlist.NewInitTreeInstruction(tree, authority, 3, 4)
	require.NoError(t, err)
	process([]solana.PublicKey{authority, tree},
		system.NewCreateAccountInstruction(bank.Rent().MinimumBalance(size), uint64(size), allowlist.ProgramID, authority, tree).Build(),
		initTree)

	createKey := solana.NewWallet().PublicKey()
	ix, vault, err := c.CreateVault(client.CreateVaultParams{
		CreateKey:     createKey,
		Administrator: admin,
		Treasury:      authority,
		AllowlistTree: tree,
		Threshold:     1,
		Founders:      founders,
	})
	require.NoError(t, err)
	process([]solana.PublicKey{createKey, admin}, ix)

	fund, err := c.Resolver().Fund(vault)
	require.NoError(t, err)
	msg, err := message.Compile(fund.Address, system.NewTransferInstruction(1, fund.Address, admin).Build())
	require.NoError(t, err)
	ix, txKey, err := c.CreateFounderTransaction(vault, founders[1], 1, 0, msg)
	require.NoError(t, err)
	process([]solana.PublicKey{founders[1]}, ix)

	out := new(bytes.Buffer)
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetContext(ctx)

	require.NoError(t, showVault(cmd, c, vault))
	require.Contains(t, out.String(), "Threshold      1 of 2")
	require.Contains(t, out.String(), txKey.String())
	require.Contains(t, out.String(), "founder active")

	out.Reset()
	require.NoError(t, showTransaction(cmd, c, vault, 1, false))
	require.Contains(t, out.String(), "Creator  "+founders[1].String())
	require.Contains(t, out.String(), "Status   active")
	require.Contains(t, out.String(), "program "+solana.SystemProgramID.String())

	require.Error(t, showTransaction(cmd, c, vault, 1, true))
}
