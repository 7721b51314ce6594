package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/pda"
	"github.com/MBenz12/vault-x/internal/state"
)

func TestParseSOL(t *testing.T) {
	for in, want := range map[string]uint64{
		"1":           solana.LAMPORTS_PER_SOL,
		"0.25":        250_000_000,
		"0.000000001": 1,
		"0":           0,
		"12.5":        12_500_000_000,
	} {
		got, err := ParseSOL(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "abc", "-1", "0.0000000001", "18446744074"} {
		_, err := ParseSOL(in)
		require.Error(t, err, in)
	}
}

func TestFormatSOL(t *testing.T) {
	require.Equal(t, "1 SOL", FormatSOL(solana.LAMPORTS_PER_SOL))
	require.Equal(t, "0.000005 SOL", FormatSOL(5000))
	require.Equal(t, "0 SOL", FormatSOL(0))
}

func TestRosterGrowOptionalAccounts(t *testing.T) {
	b := NewBuilder()
	vault, admin, founder, payer := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	ix, err := b.AddFounder(vault, admin, founder, nil)
	require.NoError(t, err)
	metas := ix.Accounts()
	require.Len(t, metas, 4)
	require.Equal(t, pda.ProgramID, metas[2].PublicKey)
	require.False(t, metas[2].IsSigner)
	require.Equal(t, pda.ProgramID, metas[3].PublicKey)

	ix, err = b.AddFounder(vault, admin, founder, &payer)
	require.NoError(t, err)
	metas = ix.Accounts()
	require.Equal(t, payer, metas[2].PublicKey)
	require.True(t, metas[2].IsSigner)
	require.True(t, metas[2].IsWritable)
	require.Equal(t, solana.SystemProgramID, metas[3].PublicKey)
}

func TestCreateVaultAddresses(t *testing.T) {
	b := NewBuilder()
	createKey := solana.NewWallet().PublicKey()
	ix, vault, err := b.CreateVault(CreateVaultParams{
		CreateKey:     createKey,
		Administrator: solana.NewWallet().PublicKey(),
		Treasury:      solana.NewWallet().PublicKey(),
		AllowlistTree: solana.NewWallet().PublicKey(),
		Threshold:     1,
		Founders:      []solana.PublicKey{solana.NewWallet().PublicKey()},
	})
	require.NoError(t, err)

	want, err := b.Resolver().Vault(createKey)
	require.NoError(t, err)
	require.Equal(t, want.Address, vault)
	require.Equal(t, pda.ProgramID, ix.ProgramID())

	metas := ix.Accounts()
	require.Len(t, metas, 7)
	require.Equal(t, vault, metas[3].PublicKey)
	require.True(t, metas[4].IsSigner)
	require.False(t, metas[4].IsWritable)
}

func TestMemcmp(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	require.True(t, Memcmp{Offset: 1, Bytes: []byte{2, 3}}.matches(data))
	require.False(t, Memcmp{Offset: 1, Bytes: []byte{3}}.matches(data))
	require.False(t, Memcmp{Offset: 3, Bytes: []byte{4, 5}}.matches(data))
}

// mapSource serves accounts from memory, owned by the vault program.
type mapSource map[solana.PublicKey][]byte

func (s mapSource) Account(_ context.Context, key solana.PublicKey) (*ledger.Account, error) {
	data, ok := s[key]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &ledger.Account{Lamports: 1, Owner: pda.ProgramID, Data: data}, nil
}

func (s mapSource) ProgramAccounts(_ context.Context, owner solana.PublicKey, filters ...Memcmp) ([]ledger.KeyedAccount, error) {
	var out []ledger.KeyedAccount
next:
	for key, data := range s {
		for _, f := range filters {
			if !f.matches(data) {
				continue next
			}
		}
		out = append(out, ledger.KeyedAccount{PublicKey: key, Account: &ledger.Account{Owner: owner, Data: data}})
	}
	return out, nil
}

func (s mapSource) put(t *testing.T, key solana.PublicKey, v state.Discriminated) {
	t.Helper()
	data, err := state.Marshal(v)
	require.NoError(t, err)
	s[key] = data
}

func TestWatcherPoll(t *testing.T) {
	ctx := context.Background()
	src := mapSource{}
	c := New("", WithSource(src))

	founders := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}
	vaultKey := solana.NewWallet().PublicKey()
	v := &state.Vault{
		Administrator:         solana.NewWallet().PublicKey(),
		Founders:              state.NewKeySet(founders...),
		FounderThreshold:      2,
		TransactionIndex:      2,
		StaleTransactionIndex: 1,
	}
	src.put(t, vaultKey, v)

	txKeys := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}
	txs := []*state.FounderTransaction{
		{Creator: founders[0], Vault: vaultKey, TransactionIndex: 1, Status: state.StatusActive},
		{Creator: founders[0], Vault: vaultKey, TransactionIndex: 2, Status: state.StatusActive, Approved: state.NewKeySet(founders[0])},
	}
	for i := range txs {
		src.put(t, txKeys[i], txs[i])
	}
	other := &state.FounderTransaction{Creator: founders[0], Vault: solana.NewWallet().PublicKey(), TransactionIndex: 1}
	src.put(t, solana.NewWallet().PublicKey(), other)

	w := NewWatcher(c, vaultKey, 0, nil)
	changes, err := w.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	require.Nil(t, changes[0].Previous)
	require.EqualValues(t, 1, changes[0].Index)
	require.True(t, changes[0].Stale)
	require.False(t, changes[1].Stale)
	require.Equal(t, 1, changes[1].Approvals)

	changes, err = w.Poll(ctx)
	require.NoError(t, err)
	require.Empty(t, changes)

	txs[1].Status = state.StatusApproved
	txs[1].Approved = state.NewKeySet(founders...)
	src.put(t, txKeys[1], txs[1])

	changes, err = w.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.NotNil(t, changes[0].Previous)
	require.Equal(t, state.StatusActive, *changes[0].Previous)
	require.Equal(t, state.StatusApproved, changes[0].Status)
	require.Contains(t, changes[0].String(), "active -> approved")
}

// countingSource counts listing calls, one per watcher poll.
type countingSource struct {
	mapSource

	mu    sync.Mutex
	polls int
}

func (s *countingSource) ProgramAccounts(ctx context.Context, owner solana.PublicKey, filters ...Memcmp) ([]ledger.KeyedAccount, error) {
	s.mu.Lock()
	s.polls++
	s.mu.Unlock()
	return s.mapSource.ProgramAccounts(ctx, owner, filters...)
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func TestWatcherRestartRunsOneLoop(t *testing.T) {
	const interval = 20 * time.Millisecond
	ctx := context.Background()
	src := &countingSource{mapSource: mapSource{}}
	vaultKey := solana.NewWallet().PublicKey()
	founder := solana.NewWallet().PublicKey()
	src.put(t, vaultKey, &state.Vault{Founders: state.NewKeySet(founder), FounderThreshold: 1, TransactionIndex: 1})
	src.put(t, solana.NewWallet().PublicKey(), &state.FounderTransaction{Creator: founder, Vault: vaultKey, TransactionIndex: 1})

	changes := make(chan Change, 8)
	w := NewWatcher(New("", WithSource(src)), vaultKey, interval, func(c Change) { changes <- c })
	require.NoError(t, w.Start(ctx))
	require.Error(t, w.Start(ctx))
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change reported")
	}

	w.Stop()
	before := src.count()
	started := time.Now()
	require.NoError(t, w.Start(ctx))
	time.Sleep(10 * interval)
	w.Stop()
	after := src.count()
	// One loop polls once on start and at most once per elapsed tick.
	require.LessOrEqual(t, after-before, int(time.Since(started)/interval)+1)

	time.Sleep(3 * interval)
	require.Equal(t, after, src.count())
	require.Empty(t, changes)
}

func TestWatcherRestartsAfterContextEnds(t *testing.T) {
	src := mapSource{}
	vaultKey := solana.NewWallet().PublicKey()
	src.put(t, vaultKey, &state.Vault{FounderThreshold: 1})
	w := NewWatcher(New("", WithSource(src)), vaultKey, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	require.Eventually(t, func() bool {
		if err := w.Start(context.Background()); err != nil {
			return false
		}
		w.Stop()
		return true
	}, time.Second, 5*time.Millisecond)
}
