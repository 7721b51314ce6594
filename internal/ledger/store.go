package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

var ErrAccountNotFound = errors.New("account not found")

// Store persists committed account state and transaction receipts.
type Store interface {
	// Get returns ErrAccountNotFound for an address that holds nothing.
	Get(ctx context.Context, key solana.PublicKey) (*Account, error)
	// Commit applies changes atomically together with the receipt. A nil or
	// empty account in changes is deleted.
	Commit(ctx context.Context, changes map[solana.PublicKey]*Account, receipt *Receipt) error
	ProgramAccounts(ctx context.Context, owner solana.PublicKey) ([]KeyedAccount, error)
	// Receipts returns the most recent receipts, newest first.
	Receipts(ctx context.Context, limit int) ([]*Receipt, error)
	Close() error
}

// MemoryStore is a Store kept entirely in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account
	receipts []*Receipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[solana.PublicKey]*Account)}
}

func (s *MemoryStore) Get(_ context.Context, key solana.PublicKey) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[key]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (s *MemoryStore) Commit(_ context.Context, changes map[solana.PublicKey]*Account, receipt *Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, acct := range changes {
		if acct == nil || acct.Empty() {
			delete(s.accounts, key)
			continue
		}
		s.accounts[key] = acct.Clone()
	}
	if receipt != nil {
		s.receipts = append(s.receipts, receipt)
	}
	return nil
}

func (s *MemoryStore) ProgramAccounts(_ context.Context, owner solana.PublicKey) ([]KeyedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []KeyedAccount
	for key, acct := range s.accounts {
		if acct.Owner.Equals(owner) {
			out = append(out, KeyedAccount{PublicKey: key, Account: acct.Clone()})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PublicKey.String() < out[j].PublicKey.String()
	})
	return out, nil
}

func (s *MemoryStore) Receipts(_ context.Context, limit int) ([]*Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.receipts) {
		limit = len(s.receipts)
	}
	out := make([]*Receipt, 0, limit)
	for i := len(s.receipts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.receipts[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
