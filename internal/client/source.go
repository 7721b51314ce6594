package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/MBenz12/vault-x/internal/ledger"
)

// ErrAccountNotFound is returned when an address holds no account.
var ErrAccountNotFound = errors.New("account not found")

// Memcmp matches accounts whose data holds Bytes at Offset.
type Memcmp struct {
	Offset uint64
	Bytes  []byte
}

func (m Memcmp) matches(data []byte) bool {
	end := m.Offset + uint64(len(m.Bytes))
	return end <= uint64(len(data)) && bytes.Equal(data[m.Offset:end], m.Bytes)
}

// AccountSource reads accounts from a ledger, local or remote.
type AccountSource interface {
	Account(ctx context.Context, key solana.PublicKey) (*ledger.Account, error)
	ProgramAccounts(ctx context.Context, owner solana.PublicKey, filters ...Memcmp) ([]ledger.KeyedAccount, error)
}

// RPCSource reads accounts from a cluster over JSON-RPC.
type RPCSource struct {
	rpc *rpc.Client
}

func NewRPCSource(client *rpc.Client) *RPCSource {
	return &RPCSource{rpc: client}
}

func (s *RPCSource) Account(ctx context.Context, key solana.PublicKey) (*ledger.Account, error) {
	info, err := s.rpc.GetAccountInfo(ctx, key)
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account %s: %w", key, err)
	}
	if info.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return fromRPC(info.Value), nil
}

func (s *RPCSource) ProgramAccounts(ctx context.Context, owner solana.PublicKey, filters ...Memcmp) ([]ledger.KeyedAccount, error) {
	opts := &rpc.GetProgramAccountsOpts{Commitment: rpc.CommitmentConfirmed}
	for _, f := range filters {
		opts.Filters = append(opts.Filters, rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{Offset: f.Offset, Bytes: solana.Base58(f.Bytes)},
		})
	}
	out, err := s.rpc.GetProgramAccountsWithOpts(ctx, owner, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts of %s: %w", owner, err)
	}
	accounts := make([]ledger.KeyedAccount, 0, len(out))
	for _, keyed := range out {
		if keyed.Account == nil {
			continue
		}
		accounts = append(accounts, ledger.KeyedAccount{PublicKey: keyed.Pubkey, Account: fromRPC(keyed.Account)})
	}
	return accounts, nil
}

func fromRPC(a *rpc.Account) *ledger.Account {
	return &ledger.Account{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Data:       a.Data.GetBinary(),
		Executable: a.Executable,
	}
}

// BankSource reads straight from an in-process ledger.
type BankSource struct {
	bank *ledger.Bank
}

func NewBankSource(bank *ledger.Bank) *BankSource {
	return &BankSource{bank: bank}
}

func (s *BankSource) Account(ctx context.Context, key solana.PublicKey) (*ledger.Account, error) {
	acct, err := s.bank.Account(ctx, key)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return acct, err
}

func (s *BankSource) ProgramAccounts(ctx context.Context, owner solana.PublicKey, filters ...Memcmp) ([]ledger.KeyedAccount, error) {
	all, err := s.bank.ProgramAccounts(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := all[:0]
next:
	for _, keyed := range all {
		for _, f := range filters {
			if !f.matches(keyed.Account.Data) {
				continue next
			}
		}
		out = append(out, keyed)
	}
	return out, nil
}
