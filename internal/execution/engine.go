package execution

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/message"
	"github.com/MBenz12/vault-x/internal/pda"
	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// Invoker runs one sub-operation against the ledger, letting the callee treat
// every address covered by token as having signed.
type Invoker interface {
	Invoke(ctx context.Context, op *SubOperation, token *AuthorityToken) error
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, op *SubOperation, token *AuthorityToken) error

func (f InvokerFunc) Invoke(ctx context.Context, op *SubOperation, token *AuthorityToken) error {
	return f(ctx, op, token)
}

// Batch is everything needed to run a stored transaction message.
type Batch struct {
	Message *message.TransactionMessage
	// Accounts are the runtime accounts the caller presented, one per message key.
	Accounts   []*solana.AccountMeta
	Fund       pda.Authority
	Ephemerals []pda.Authority
	// Protected accounts may appear in the batch but never as writable.
	Protected []solana.PublicKey
}

func (b Batch) ephemeralAddresses() []solana.PublicKey {
	out := make([]solana.PublicKey, len(b.Ephemerals))
	for i, a := range b.Ephemerals {
		out[i] = a.Address
	}
	return out
}

// Engine turns a validated message into sub-operations and runs them in order.
type Engine struct {
	invoker Invoker
	log     *zap.Logger
}

type Option func(*Engine)

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func NewEngine(invoker Invoker, opts ...Option) *Engine {
	e := &Engine{invoker: invoker, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prepare checks the presented accounts and builds every sub-operation. It
// fails before anything runs if any instruction is out of bounds or writes a
// protected account.
func (e *Engine) Prepare(b Batch) ([]*SubOperation, error) {
	msg := b.Message
	if err := msg.ValidateAccounts(b.Accounts, b.Fund.Address, b.ephemeralAddresses()); err != nil {
		return nil, err
	}

	ops := make([]*SubOperation, 0, len(msg.Instructions))
	for i, ix := range msg.Instructions {
		if int(ix.ProgramIDIndex) >= len(b.Accounts) {
			return nil, fmt.Errorf("%w: instruction %d program index %d", vaulterr.ErrInvalidInstructionIndex, i, ix.ProgramIDIndex)
		}
		program := b.Accounts[ix.ProgramIDIndex]

		op := &SubOperation{
			program:  program.PublicKey,
			data:     ix.Data,
			metas:    make([]*solana.AccountMeta, 0, len(ix.AccountIndexes)),
			accounts: make([]*solana.AccountMeta, 0, len(ix.AccountIndexes)+1),
		}
		for _, idx := range ix.AccountIndexes {
			if int(idx) >= len(b.Accounts) {
				return nil, fmt.Errorf("%w: instruction %d account index %d", vaulterr.ErrInvalidInstructionIndex, i, idx)
			}
			acct := b.Accounts[idx]
			writable := msg.IsWritable(int(idx))
			if writable && acct.PublicKey.IsAnyOf(b.Protected...) {
				return nil, fmt.Errorf("%w: instruction %d writes %s", vaulterr.ErrProtectedAccount, i, acct.PublicKey)
			}
			op.metas = append(op.metas, solana.NewAccountMeta(acct.PublicKey, writable, msg.IsSigner(int(idx))))
			op.accounts = append(op.accounts, acct)
		}
		op.accounts = append(op.accounts, solana.NewAccountMeta(program.PublicKey, false, false))
		ops = append(ops, op)
	}
	return ops, nil
}

// Execute runs every sub-operation of b in declared order with the fund and
// ephemeral authorities attached. The first failure stops the batch; undoing
// earlier sub-operations is left to the ledger's transaction boundary.
func (e *Engine) Execute(ctx context.Context, b Batch) error {
	ops, err := e.Prepare(b)
	if err != nil {
		return err
	}
	token := NewAuthorityToken(b.Fund, b.Ephemerals...)

	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.invoker.Invoke(ctx, op, token); err != nil {
			return fmt.Errorf("instruction %d (%s): %w", i, op.program.Short(4), err)
		}
	}
	e.log.Debug("executed transaction message",
		zap.Int("instructions", len(ops)),
		zap.Stringer("fund", b.Fund.Address),
	)
	return nil
}
