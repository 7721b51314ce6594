package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/state"
)

const DefaultWatchInterval = 30 * time.Second

// Change is one observed difference in a vault's founder transactions.
type Change struct {
	Vault       solana.PublicKey
	Transaction solana.PublicKey
	Index       uint32
	// Previous is nil the first time a transaction is seen.
	Previous  *state.Status
	Status    state.Status
	Approvals int
	Rejects   int
	Stale     bool
}

func (c Change) String() string {
	if c.Previous == nil {
		return fmt.Sprintf("transaction %d (%s) is %s", c.Index, shortenAddress(c.Transaction.String()), c.Status)
	}
	return fmt.Sprintf("transaction %d (%s) moved %s -> %s", c.Index, shortenAddress(c.Transaction.String()), *c.Previous, c.Status)
}

// Watcher polls a vault's founder transactions and reports status changes.
type Watcher struct {
	client   *Client
	vault    solana.PublicKey
	interval time.Duration
	onChange func(Change)
	log      *zap.Logger

	mu   sync.Mutex
	seen map[solana.PublicKey]state.Status

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWatcher(client *Client, vault solana.PublicKey, interval time.Duration, onChange func(Change)) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		client:   client,
		vault:    vault,
		interval: interval,
		onChange: onChange,
		log:      client.log.With(zap.Stringer("vault", vault)),
		seen:     make(map[solana.PublicKey]state.Status),
	}
}

// Start polls once right away and then every interval until ctx ends or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("watcher already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel, w.done = cancel, done
	go func() {
		defer close(done)
		defer cancel()
		w.loop(ctx)

		w.runMu.Lock()
		if w.done == done {
			w.cancel, w.done = nil, nil
		}
		w.runMu.Unlock()
	}()
	return nil
}

// Stop ends the polling loop and waits for it to exit. It must not be called
// from the change callback.
func (w *Watcher) Stop() {
	w.runMu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	changes, err := w.Poll(ctx)
	if err != nil {
		w.log.Warn("poll failed", zap.Error(err))
		return
	}
	for _, c := range changes {
		w.log.Info("transaction changed", zap.Uint32("index", c.Index), zap.Stringer("status", c.Status))
		if w.onChange != nil {
			w.onChange(c)
		}
	}
}

// Poll reads the vault once and returns every transaction that is new or
// whose status moved since the previous poll.
func (w *Watcher) Poll(ctx context.Context) ([]Change, error) {
	v, err := w.client.FetchVault(ctx, w.vault)
	if err != nil {
		return nil, err
	}
	txs, err := w.client.FounderTransactions(ctx, w.vault)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	var changes []Change
	for _, keyed := range txs {
		tx := keyed.Transaction
		prev, known := w.seen[keyed.Address]
		if known && prev == tx.Status {
			continue
		}
		c := Change{
			Vault:       w.vault,
			Transaction: keyed.Address,
			Index:       tx.TransactionIndex,
			Status:      tx.Status,
			Approvals:   tx.Approved.Len(),
			Rejects:     tx.Rejected.Len(),
			Stale:       v.IsStale(tx.TransactionIndex),
		}
		if known {
			p := prev
			c.Previous = &p
		}
		w.seen[keyed.Address] = tx.Status
		changes = append(changes, c)
	}
	return changes, nil
}

func shortenAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}
