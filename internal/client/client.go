// Package client is the Go SDK for the vault program: instruction builders,
// account fetch and decode, transaction submission and a polling watcher.
package client

import (
	"context"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	confirm "github.com/gagliardetto/solana-go/rpc/sendAndConfirmTransaction"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/state"
)

// transactionVaultOffset is where both transaction kinds store their vault:
// after the discriminator and the creator.
const transactionVaultOffset = state.DiscriminatorSize + solana.PublicKeyLength

type Client struct {
	*Builder
	source     AccountSource
	rpc        *rpc.Client
	wsEndpoint string
	log        *zap.Logger
}

type Option func(*Client)

func WithProgramID(id solana.PublicKey) Option {
	return func(c *Client) { c.Builder = NewBuilder(id) }
}

func WithSource(source AccountSource) Option {
	return func(c *Client) { c.source = source }
}

// WithWebsocket sets the endpoint SendAndConfirm listens on for confirmation.
func WithWebsocket(endpoint string) Option {
	return func(c *Client) { c.wsEndpoint = endpoint }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client for the cluster at rpcURL. Accounts are read over
// the same endpoint unless WithSource points elsewhere.
func New(rpcURL string, opts ...Option) *Client {
	c := &Client{
		Builder: NewBuilder(),
		log:     zap.NewNop(),
	}
	if rpcURL != "" {
		c.rpc = rpc.New(rpcURL)
		c.source = NewRPCSource(c.rpc)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Source() AccountSource { return c.source }

func (c *Client) fetch(ctx context.Context, key solana.PublicKey, v state.Discriminated) error {
	if c.source == nil {
		return fmt.Errorf("no account source configured")
	}
	acct, err := c.source.Account(ctx, key)
	if err != nil {
		return err
	}
	if !acct.Owner.Equals(c.ProgramID()) {
		return fmt.Errorf("account %s is owned by %s, not the vault program", key, acct.Owner)
	}
	if err := state.Unmarshal(acct.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (c *Client) FetchConfig(ctx context.Context) (*state.VaultConfig, error) {
	addr, err := c.config()
	if err != nil {
		return nil, err
	}
	cfg := new(state.VaultConfig)
	if err := c.fetch(ctx, addr, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) FetchVault(ctx context.Context, vault solana.PublicKey) (*state.Vault, error) {
	v := new(state.Vault)
	if err := c.fetch(ctx, vault, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) FetchFounderTransaction(ctx context.Context, key solana.PublicKey) (*state.FounderTransaction, error) {
	tx := new(state.FounderTransaction)
	if err := c.fetch(ctx, key, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (c *Client) FetchMemberTransaction(ctx context.Context, key solana.PublicKey) (*state.MemberTransaction, error) {
	tx := new(state.MemberTransaction)
	if err := c.fetch(ctx, key, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// NextTransactionIndex is the index the vault's next transaction of either
// kind will take.
func (c *Client) NextTransactionIndex(ctx context.Context, vault solana.PublicKey) (uint32, error) {
	v, err := c.FetchVault(ctx, vault)
	if err != nil {
		return 0, err
	}
	return v.TransactionIndex + 1, nil
}

// Keyed pairs a decoded transaction with its address.
type Keyed[T any] struct {
	Address     solana.PublicKey
	Transaction *T
}

func (c *Client) list(ctx context.Context, vault solana.PublicKey, d state.Discriminator) ([]ledger.KeyedAccount, error) {
	if c.source == nil {
		return nil, fmt.Errorf("no account source configured")
	}
	return c.source.ProgramAccounts(ctx, c.ProgramID(),
		Memcmp{Offset: 0, Bytes: d[:]},
		Memcmp{Offset: transactionVaultOffset, Bytes: vault.Bytes()},
	)
}

// FounderTransactions lists a vault's founder transactions by index.
func (c *Client) FounderTransactions(ctx context.Context, vault solana.PublicKey) ([]Keyed[state.FounderTransaction], error) {
	raw, err := c.list(ctx, vault, state.DiscriminatorFounderTransaction)
	if err != nil {
		return nil, err
	}
	out := make([]Keyed[state.FounderTransaction], 0, len(raw))
	for _, r := range raw {
		tx := new(state.FounderTransaction)
		if err := state.Unmarshal(r.Account.Data, tx); err != nil {
			c.log.Warn("skipping undecodable founder transaction", zap.Stringer("account", r.PublicKey), zap.Error(err))
			continue
		}
		out = append(out, Keyed[state.FounderTransaction]{Address: r.PublicKey, Transaction: tx})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Transaction.TransactionIndex < out[j].Transaction.TransactionIndex
	})
	return out, nil
}

// MemberTransactions lists a vault's member transactions by index.
func (c *Client) MemberTransactions(ctx context.Context, vault solana.PublicKey) ([]Keyed[state.MemberTransaction], error) {
	raw, err := c.list(ctx, vault, state.DiscriminatorMemberTransaction)
	if err != nil {
		return nil, err
	}
	out := make([]Keyed[state.MemberTransaction], 0, len(raw))
	for _, r := range raw {
		tx := new(state.MemberTransaction)
		if err := state.Unmarshal(r.Account.Data, tx); err != nil {
			c.log.Warn("skipping undecodable member transaction", zap.Stringer("account", r.PublicKey), zap.Error(err))
			continue
		}
		out = append(out, Keyed[state.MemberTransaction]{Address: r.PublicKey, Transaction: tx})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Transaction.TransactionIndex < out[j].Transaction.TransactionIndex
	})
	return out, nil
}

// SendAndConfirm signs instructions with signers, the first of which pays,
// and waits for the cluster to confirm the transaction.
func (c *Client) SendAndConfirm(ctx context.Context, instructions []solana.Instruction, signers ...solana.PrivateKey) (solana.Signature, error) {
	if c.rpc == nil {
		return solana.Signature{}, fmt.Errorf("no rpc endpoint configured")
	}
	if len(signers) == 0 {
		return solana.Signature{}, fmt.Errorf("at least one signer is required")
	}

	hash, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(instructions, hash.Value.Blockhash, solana.TransactionPayer(signers[0].PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}
	if err := SignTransaction(tx, signers...); err != nil {
		return solana.Signature{}, err
	}

	wsClient, err := ws.Connect(ctx, c.wsEndpoint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to connect websocket: %w", err)
	}
	defer wsClient.Close()

	sig, err := confirm.SendAndConfirmTransaction(ctx, c.rpc, wsClient, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	c.log.Info("transaction confirmed", zap.Stringer("signature", sig), zap.Int("instructions", len(instructions)))
	return sig, nil
}

// SignTransaction signs tx with whichever of signers it requires.
func SignTransaction(tx *solana.Transaction, signers ...solana.PrivateKey) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}
