package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/MBenz12/vault-x/internal/message"
	"github.com/MBenz12/vault-x/internal/pda"
	"github.com/MBenz12/vault-x/internal/vaulterr"
)

type recorder struct {
	ops    []*SubOperation
	tokens []*AuthorityToken
	failAt int
}

func (r *recorder) Invoke(_ context.Context, op *SubOperation, token *AuthorityToken) error {
	if r.failAt > 0 && len(r.ops)+1 == r.failAt {
		return errors.New("callee failed")
	}
	r.ops = append(r.ops, op)
	r.tokens = append(r.tokens, token)
	return nil
}

type fixture struct {
	vault      solana.PublicKey
	tx         solana.PublicKey
	fund       pda.Authority
	ephemerals []pda.Authority
	recipient  solana.PublicKey
	program    solana.PublicKey
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	r := pda.NewResolver()
	vault, err := r.Vault(solana.NewWallet().PublicKey())
	require.NoError(t, err)
	tx, err := r.FounderTransaction(vault.Address, 1)
	require.NoError(t, err)
	fund, err := r.Fund(vault.Address)
	require.NoError(t, err)
	ephemerals, err := r.EphemeralSigners(tx.Address, 1)
	require.NoError(t, err)
	return fixture{
		vault:      vault.Address,
		tx:         tx.Address,
		fund:       fund,
		ephemerals: ephemerals,
		recipient:  solana.NewWallet().PublicKey(),
		program:    solana.NewWallet().PublicKey(),
	}
}

// keys: fund (ws), ephemeral (ws), recipient (w), extra (w), program (r)
func (f fixture) batch(extra solana.PublicKey, instructions ...message.Instruction) Batch {
	msg := &message.TransactionMessage{
		NumSigners:            2,
		NumWritableSigners:    2,
		NumWritableNonSigners: 2,
		AccountKeys:           []solana.PublicKey{f.fund.Address, f.ephemerals[0].Address, f.recipient, extra, f.program},
		Instructions:          instructions,
	}
	return Batch{
		Message:    msg,
		Accounts:   msg.AccountMetas(f.fund.Address, f.ephemerals[0].Address),
		Fund:       f.fund,
		Ephemerals: f.ephemerals,
		Protected:  []solana.PublicKey{f.vault, f.tx},
	}
}

func TestExecuteRunsInOrderWithAuthorities(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	rec := &recorder{}
	b := f.batch(solana.NewWallet().PublicKey(),
		message.Instruction{ProgramIDIndex: 4, AccountIndexes: []uint8{0, 2}, Data: []byte{1}},
		message.Instruction{ProgramIDIndex: 4, AccountIndexes: []uint8{1, 3}, Data: []byte{2}},
	)

	require.NoError(NewEngine(rec).Execute(context.Background(), b))
	require.Len(rec.ops, 2)

	first := rec.ops[0]
	require.Equal(f.program, first.ProgramID())
	data, err := first.Data()
	require.NoError(err)
	require.Equal([]byte{1}, data)
	require.Equal([]*solana.AccountMeta{
		solana.NewAccountMeta(f.fund.Address, true, true),
		solana.NewAccountMeta(f.recipient, true, false),
	}, first.Accounts())

	infos := first.AccountInfos()
	require.Len(infos, 3)
	require.Equal(f.program, infos[2].PublicKey)
	require.False(infos[2].IsSigner)
	require.False(infos[2].IsWritable)

	token := rec.tokens[0]
	require.True(token.Covers(f.fund.Address))
	require.True(token.Covers(f.ephemerals[0].Address))
	require.False(token.Covers(f.recipient))
	seeds := token.SignerSeeds()
	require.Len(seeds, 2)
	addr, err := solana.CreateProgramAddress(seeds[1], pda.ProgramID)
	require.NoError(err)
	require.Equal(f.fund.Address, addr)
}

func TestProtectedAccountAbortsWholeBatch(t *testing.T) {
	f := newFixture(t)

	for _, protected := range []solana.PublicKey{f.vault, f.tx} {
		rec := &recorder{}
		b := f.batch(protected,
			message.Instruction{ProgramIDIndex: 4, AccountIndexes: []uint8{0, 2}},
			message.Instruction{ProgramIDIndex: 4, AccountIndexes: []uint8{3}},
			message.Instruction{ProgramIDIndex: 4, AccountIndexes: []uint8{2}},
		)
		err := NewEngine(rec).Execute(context.Background(), b)
		require.ErrorIs(t, err, vaulterr.ErrProtectedAccount)
		require.Empty(t, rec.ops)
	}
}

func TestProtectedAccountReadonlyIsAllowed(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	b := f.batch(solana.NewWallet().PublicKey(), message.Instruction{ProgramIDIndex: 4, AccountIndexes: []uint8{4}})
	b.Protected = append(b.Protected, f.program)

	require.NoError(t, NewEngine(rec).Execute(context.Background(), b))
	require.Len(t, rec.ops, 1)
}

func TestAccountMismatchAbortsBeforeInvoke(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	b := f.batch(solana.NewWallet().PublicKey(), message.Instruction{ProgramIDIndex: 4, AccountIndexes: []uint8{2}})
	b.Accounts[2].IsWritable = false

	err := NewEngine(rec).Execute(context.Background(), b)
	require.ErrorIs(t, err, vaulterr.ErrAccountMismatch)
	require.Empty(t, rec.ops)

	b = f.batch(solana.NewWallet().PublicKey(), message.Instruction{ProgramIDIndex: 4, AccountIndexes: []uint8{2}})
	b.Ephemerals = nil
	err = NewEngine(rec).Execute(context.Background(), b)
	require.ErrorIs(t, err, vaulterr.ErrAccountMismatch)
}

func TestFirstFailureStopsBatch(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{failAt: 2}
	b := f.batch(solana.NewWallet().PublicKey(),
		message.Instruction{ProgramIDIndex: 4, AccountIndexes: []uint8{2}},
		message.Instruction{ProgramIDIndex: 4, AccountIndexes: []uint8{2}},
		message.Instruction{ProgramIDIndex: 4, AccountIndexes: []uint8{2}},
	)

	err := NewEngine(rec).Execute(context.Background(), b)
	require.ErrorContains(t, err, "callee failed")
	require.Len(t, rec.ops, 1)
}

func TestOutOfRangeIndex(t *testing.T) {
	f := newFixture(t)
	b := f.batch(solana.NewWallet().PublicKey(), message.Instruction{ProgramIDIndex: 9})

	_, err := NewEngine(&recorder{}).Prepare(b)
	require.ErrorIs(t, err, vaulterr.ErrInvalidInstructionIndex)
}
