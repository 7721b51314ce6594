package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

// Program is native code the bank runs for one program ID.
type Program interface {
	Process(ic *InvokeContext, accounts []*solana.AccountMeta, data []byte) error
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(ic *InvokeContext, accounts []*solana.AccountMeta, data []byte) error

func (f ProgramFunc) Process(ic *InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	return f(ic, accounts, data)
}

// Transaction is a signed, ordered list of instructions that commits as a unit.
type Transaction struct {
	Instructions []solana.Instruction
	Signers      []solana.PublicKey
	// Signature identifies the transaction in receipts. One is derived when empty.
	Signature string
}

// Bank is a single-node ledger: it runs transactions one at a time against
// a Store, committing all of a transaction's writes or none of them.
type Bank struct {
	mu       sync.Mutex
	store    Store
	programs map[solana.PublicKey]Program
	rent     Rent
	log      *zap.Logger
	slot     uint64
}

type Option func(*Bank)

func WithLogger(log *zap.Logger) Option {
	return func(b *Bank) { b.log = log }
}

func WithRent(rent Rent) Option {
	return func(b *Bank) { b.rent = rent }
}

func NewBank(store Store, opts ...Option) *Bank {
	b := &Bank{
		store:    store,
		programs: make(map[solana.PublicKey]Program),
		rent:     DefaultRent,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.programs[solana.SystemProgramID] = SystemProgram{}

	// Slots continue from the newest receipt a durable store already holds.
	latest, err := store.Receipts(context.Background(), 1)
	switch {
	case err != nil:
		b.log.Warn("failed to read latest receipt", zap.Error(err))
	case len(latest) > 0:
		b.slot = latest[0].Slot
	}
	return b
}

// Register installs a program under id, replacing any previous one.
func (b *Bank) Register(id solana.PublicKey, p Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.programs[id] = p
}

func (b *Bank) Rent() Rent { return b.rent }

func (b *Bank) Store() Store { return b.store }

func (b *Bank) run(ctx context.Context, ov *overlay, logs *[]string, programID solana.PublicKey, metas []*solana.AccountMeta, data []byte, depth int) error {
	prog, ok := b.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}
	ic := &InvokeContext{
		ctx:       ctx,
		bank:      b,
		ov:        ov,
		programID: programID,
		accounts:  metas,
		depth:     depth,
		logs:      logs,
	}
	*logs = append(*logs, fmt.Sprintf("Program %s invoke [%d]", programID, depth))
	if err := prog.Process(ic, metas, data); err != nil {
		*logs = append(*logs, fmt.Sprintf("Program %s failed: %v", programID, err))
		return err
	}
	*logs = append(*logs, fmt.Sprintf("Program %s success", programID))
	return nil
}

// Process runs tx. A failed transaction leaves every account untouched but
// still records a receipt.
func (b *Bank) Process(ctx context.Context, tx Transaction) (*Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slot++
	receipt := &Receipt{Signature: tx.Signature, Slot: b.slot, Time: time.Now().UTC()}
	if receipt.Signature == "" {
		receipt.Signature = b.deriveSignature(tx)
	}

	err := b.execute(ctx, tx, receipt)
	if err != nil {
		receipt.Err = err.Error()
		b.log.Debug("transaction failed",
			zap.String("signature", receipt.Signature),
			zap.Error(err),
		)
		if cerr := b.store.Commit(ctx, nil, receipt); cerr != nil {
			b.log.Warn("failed to record receipt", zap.Error(cerr))
		}
		return receipt, err
	}
	return receipt, nil
}

func (b *Bank) execute(ctx context.Context, tx Transaction, receipt *Receipt) error {
	ov := newOverlay(ctx, b.store)
	for i, ix := range tx.Instructions {
		metas := ix.Accounts()
		for _, m := range metas {
			if m.IsSigner && !m.PublicKey.IsAnyOf(tx.Signers...) {
				return fmt.Errorf("instruction %d: %w: %s", i, ErrMissingSignature, m.PublicKey)
			}
		}
		data, err := ix.Data()
		if err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		if err := b.run(ctx, ov, &receipt.Logs, ix.ProgramID(), metas, data, 1); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}

	if !ov.balanced() {
		return ErrUnbalancedTransaction
	}
	for key := range ov.dirty {
		acct := ov.accounts[key]
		if len(acct.Data) > 0 && !b.rent.IsExempt(acct.Lamports, len(acct.Data)) {
			return fmt.Errorf("%w: %s holds %d for %d bytes", ErrRentNotMet, key, acct.Lamports, len(acct.Data))
		}
	}

	if err := b.store.Commit(ctx, ov.changes(), receipt); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	b.log.Debug("transaction committed",
		zap.String("signature", receipt.Signature),
		zap.Uint64("slot", receipt.Slot),
		zap.Int("accounts", len(ov.dirty)),
	)
	return nil
}

func (b *Bank) deriveSignature(tx Transaction) string {
	h := sha256.New()
	var slot [8]byte
	binary.LittleEndian.PutUint64(slot[:], b.slot)
	h.Write(slot[:])
	for _, ix := range tx.Instructions {
		pid := ix.ProgramID()
		h.Write(pid[:])
		data, _ := ix.Data()
		h.Write(data)
	}
	return base58.Encode(h.Sum(nil))
}

// ProcessTransaction verifies a wire transaction's signatures and runs it.
func (b *Bank) ProcessTransaction(ctx context.Context, tx *solana.Transaction) (*Receipt, error) {
	if err := tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingSignature, err)
	}
	instructions := make([]solana.Instruction, 0, len(tx.Message.Instructions))
	for i, ci := range tx.Message.Instructions {
		metas, err := ci.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		programID, err := tx.Message.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		instructions = append(instructions, solana.NewInstruction(programID, metas, ci.Data))
	}
	return b.Process(ctx, Transaction{
		Instructions: instructions,
		Signers:      tx.Message.Signers(),
		Signature:    tx.Signatures[0].String(),
	})
}

// Airdrop mints lamports into key outside of any program.
func (b *Bank) Airdrop(ctx context.Context, key solana.PublicKey, lamports uint64) (*Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ov := newOverlay(ctx, b.store)
	acct, err := ov.load(key)
	if err != nil {
		return nil, err
	}
	if err := credit(acct, key, lamports); err != nil {
		return nil, err
	}
	b.slot++
	receipt := &Receipt{
		Slot: b.slot,
		Time: time.Now().UTC(),
		Logs: []string{fmt.Sprintf("airdrop %d lamports to %s", lamports, key)},
	}
	receipt.Signature = b.deriveSignature(Transaction{
		Instructions: []solana.Instruction{solana.NewInstruction(solana.SystemProgramID, nil, key[:])},
	})
	if err := b.store.Commit(ctx, map[solana.PublicKey]*Account{key: acct}, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// Account returns the committed state of key, or ErrAccountNotFound.
func (b *Bank) Account(ctx context.Context, key solana.PublicKey) (*Account, error) {
	return b.store.Get(ctx, key)
}

func (b *Bank) ProgramAccounts(ctx context.Context, owner solana.PublicKey) ([]KeyedAccount, error) {
	return b.store.ProgramAccounts(ctx, owner)
}

func (b *Bank) Receipts(ctx context.Context, limit int) ([]*Receipt, error) {
	return b.store.Receipts(ctx, limit)
}
