package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/client"
	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/message"
	"github.com/MBenz12/vault-x/internal/state"
)

const (
	EncodingBase64 = "base64"
	EncodingBase58 = "base58"
)

const defaultReceiptLimit = 50

func decodePayload(data, encoding string) ([]byte, error) {
	switch encoding {
	case "", EncodingBase64:
		return base64.StdEncoding.DecodeString(data)
	case EncodingBase58:
		return base58.Decode(data)
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

func pubkeyVar(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(mux.Vars(r)["pubkey"])
	if err != nil {
		badRequest(w, "Invalid public key")
		return solana.PublicKey{}, false
	}
	return key, true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"programID": s.client.ProgramID().String(),
	})
}

// ReceiptView is the JSON form of a ledger receipt.
type ReceiptView struct {
	Signature string   `json:"signature"`
	Slot      uint64   `json:"slot"`
	Err       string   `json:"err,omitempty"`
	Logs      []string `json:"logs"`
	Time      string   `json:"time"`
}

func newReceiptView(r *ledger.Receipt) ReceiptView {
	return ReceiptView{
		Signature: r.Signature,
		Slot:      r.Slot,
		Err:       r.Err,
		Logs:      r.Logs,
		Time:      r.Time.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func (s *Server) submitTransaction(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		Transaction string `json:"transaction"`
		Encoding    string `json:"encoding"`
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Transaction == "" {
		badRequest(w, "Invalid request")
		return
	}

	var (
		tx  *solana.Transaction
		err error
	)
	switch req.Encoding {
	case "", EncodingBase64:
		tx, err = solana.TransactionFromBase64(req.Transaction)
	case EncodingBase58:
		tx, err = solana.TransactionFromBase58(req.Transaction)
	default:
		badRequest(w, fmt.Sprintf("Unknown encoding %q", req.Encoding))
		return
	}
	if err != nil || len(tx.Signatures) == 0 {
		badRequest(w, "Failed to decode transaction")
		return
	}

	receipt, err := s.bank.ProcessTransaction(r.Context(), tx)
	s.metrics.ObserveTransaction(err)
	if err != nil {
		var logs []string
		if receipt != nil {
			logs = receipt.Logs
		}
		s.log.Info("transaction failed", zap.String("signature", tx.Signatures[0].String()), zap.Error(err))
		s.writeError(w, err, logs)
		return
	}
	writeJSON(w, http.StatusOK, newReceiptView(receipt))
}

func (s *Server) airdrop(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		PublicKey string `json:"pubkey"`
		Lamports  uint64 `json:"lamports"`
		SOL       string `json:"sol"`
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request")
		return
	}
	key, err := solana.PublicKeyFromBase58(req.PublicKey)
	if err != nil {
		badRequest(w, "Invalid public key")
		return
	}
	lamports := req.Lamports
	if req.SOL != "" {
		if lamports, err = client.ParseSOL(req.SOL); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	if lamports == 0 {
		badRequest(w, "Airdrop amount must be positive")
		return
	}

	receipt, err := s.bank.Airdrop(r.Context(), key, lamports)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newReceiptView(receipt))
}

func (s *Server) receipts(w http.ResponseWriter, r *http.Request) {
	limit := defaultReceiptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "Invalid limit")
			return
		}
		limit = n
	}
	receipts, err := s.bank.Receipts(r.Context(), limit)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	views := make([]ReceiptView, 0, len(receipts))
	for _, rc := range receipts {
		views = append(views, newReceiptView(rc))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	key, ok := pubkeyVar(w, r)
	if !ok {
		return
	}
	acct, err := s.client.Source().Account(r.Context(), key)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	view := map[string]interface{}{
		"address":    key.String(),
		"lamports":   acct.Lamports,
		"sol":        client.FormatSOL(acct.Lamports),
		"owner":      acct.Owner.String(),
		"executable": acct.Executable,
		"size":       len(acct.Data),
		"data":       base64.StdEncoding.EncodeToString(acct.Data),
	}
	if acct.Owner.Equals(s.client.ProgramID()) {
		if kind, ok := accountKind(acct.Data); ok {
			view["kind"] = kind
		}
	}
	writeJSON(w, http.StatusOK, view)
}

var accountKinds = []struct {
	discriminator state.Discriminator
	name          string
}{
	{state.DiscriminatorVaultConfig, "config"},
	{state.DiscriminatorVault, "vault"},
	{state.DiscriminatorFounderTransaction, "founder_transaction"},
	{state.DiscriminatorMemberTransaction, "member_transaction"},
}

func accountKind(data []byte) (string, bool) {
	for _, k := range accountKinds {
		if state.HasDiscriminator(data, k.discriminator) {
			return k.name, true
		}
	}
	return "", false
}

func (s *Server) vaultConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.client.FetchConfig(r.Context())
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authority":   cfg.Authority.String(),
		"treasury":    cfg.Treasury.String(),
		"creationFee": cfg.CreationFee,
	})
}

// VaultView is the JSON form of a vault account.
type VaultView struct {
	Address               string   `json:"address"`
	Fund                  string   `json:"fund"`
	Administrator         string   `json:"administrator"`
	CreateKey             string   `json:"createKey"`
	AllowlistTree         string   `json:"allowlistTree"`
	Founders              []string `json:"founders"`
	Members               []string `json:"members"`
	FounderThreshold      uint16   `json:"founderThreshold"`
	TransactionIndex      uint32   `json:"transactionIndex"`
	StaleTransactionIndex uint32   `json:"staleTransactionIndex"`
}

func keyStrings(keys state.KeySet) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}

func (s *Server) vault(w http.ResponseWriter, r *http.Request) {
	key, ok := pubkeyVar(w, r)
	if !ok {
		return
	}
	v, err := s.client.FetchVault(r.Context(), key)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	fund, err := s.client.Resolver().Fund(key)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, VaultView{
		Address:               key.String(),
		Fund:                  fund.Address.String(),
		Administrator:         v.Administrator.String(),
		CreateKey:             v.CreateKey.String(),
		AllowlistTree:         v.AllowlistTree.String(),
		Founders:              keyStrings(v.Founders),
		Members:               keyStrings(v.Members),
		FounderThreshold:      v.FounderThreshold,
		TransactionIndex:      v.TransactionIndex,
		StaleTransactionIndex: v.StaleTransactionIndex,
	})
}

type transactionView struct {
	Address   string      `json:"address"`
	Kind      string      `json:"kind"`
	Index     uint32      `json:"index"`
	Creator   string      `json:"creator"`
	Status    string      `json:"status,omitempty"`
	Stale     bool        `json:"stale"`
	Approved  []string    `json:"approved,omitempty"`
	Rejected  []string    `json:"rejected,omitempty"`
	Cancelled []string    `json:"cancelled,omitempty"`
	Message   messageView `json:"message"`
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	key, ok := pubkeyVar(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	v, err := s.client.FetchVault(ctx, key)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	founder, err := s.client.FounderTransactions(ctx, key)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	member, err := s.client.MemberTransactions(ctx, key)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}

	views := make([]transactionView, 0, len(founder)+len(member))
	for _, k := range founder {
		tx := k.Transaction
		views = append(views, transactionView{
			Address:   k.Address.String(),
			Kind:      "founder",
			Index:     tx.TransactionIndex,
			Creator:   tx.Creator.String(),
			Status:    tx.Status.String(),
			Stale:     !tx.Status.Terminal() && v.IsStale(tx.TransactionIndex),
			Approved:  keyStrings(tx.Approved),
			Rejected:  keyStrings(tx.Rejected),
			Cancelled: keyStrings(tx.Cancelled),
			Message:   newMessageView(&tx.Message),
		})
	}
	for _, k := range member {
		tx := k.Transaction
		views = append(views, transactionView{
			Address: k.Address.String(),
			Kind:    "member",
			Index:   tx.TransactionIndex,
			Creator: tx.Creator.String(),
			Message: newMessageView(&tx.Message),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type accountKeyView struct {
	Address    string `json:"address"`
	Permission string `json:"permission"`
}

type instructionView struct {
	ProgramID string   `json:"programId"`
	Accounts  []string `json:"accounts"`
	Data      string   `json:"data"`
}

type messageView struct {
	AccountKeys  []accountKeyView  `json:"accountKeys"`
	Instructions []instructionView `json:"instructions"`
}

// newMessageView resolves indexes to addresses. Callers pass messages that
// already passed Parse, so every index is in range.
func newMessageView(m *message.TransactionMessage) messageView {
	view := messageView{
		AccountKeys:  make([]accountKeyView, 0, len(m.AccountKeys)),
		Instructions: make([]instructionView, 0, len(m.Instructions)),
	}
	for i, k := range m.AccountKeys {
		view.AccountKeys = append(view.AccountKeys, accountKeyView{
			Address:    k.String(),
			Permission: m.Permission(i).String(),
		})
	}
	for _, ix := range m.Instructions {
		iv := instructionView{
			ProgramID: m.AccountKeys[ix.ProgramIDIndex].String(),
			Accounts:  make([]string, 0, len(ix.AccountIndexes)),
			Data:      base58.Encode(ix.Data),
		}
		for _, idx := range ix.AccountIndexes {
			iv.Accounts = append(iv.Accounts, m.AccountKeys[idx].String())
		}
		view.Instructions = append(view.Instructions, iv)
	}
	return view
}

func (s *Server) inspectMessage(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		Message  string `json:"message"`
		Encoding string `json:"encoding"`
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		badRequest(w, "Invalid request")
		return
	}
	raw, err := decodePayload(req.Message, req.Encoding)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	m, err := message.Parse(raw)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newMessageView(m))
}
