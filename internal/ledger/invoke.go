package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// MaxInvokeDepth bounds nested cross-program invocations, top level included.
const MaxInvokeDepth = 5

var (
	ErrAccountNotPassed        = errors.New("account was not passed to the instruction")
	ErrReadonlyAccount         = errors.New("instruction modified a readonly account")
	ErrExternalAccountModified = errors.New("instruction modified an account it does not own")
	ErrMissingSignature        = errors.New("missing required signature")
	ErrPrivilegeEscalation     = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrUnknownProgram          = errors.New("unknown program")
	ErrInsufficientLamports    = errors.New("insufficient lamports")
	ErrAccountInUse            = errors.New("account already in use")
	ErrRentNotMet              = errors.New("account would not be rent exempt")
	ErrCallDepth               = errors.New("cross-program invocation call depth too deep")
	ErrUnbalancedTransaction   = errors.New("sum of account balances changed")
	ErrAccountDataTooSmall     = errors.New("account data too small for instruction")
	ErrLamportOverflow         = errors.New("account lamports would overflow")
)

// overlay holds every account a transaction touched until it commits.
type overlay struct {
	ctx      context.Context
	store    Store
	accounts map[solana.PublicKey]*Account
	original map[solana.PublicKey]uint64
	dirty    map[solana.PublicKey]bool
}

func newOverlay(ctx context.Context, store Store) *overlay {
	return &overlay{
		ctx:      ctx,
		store:    store,
		accounts: make(map[solana.PublicKey]*Account),
		original: make(map[solana.PublicKey]uint64),
		dirty:    make(map[solana.PublicKey]bool),
	}
}

func (o *overlay) load(key solana.PublicKey) (*Account, error) {
	if acct, ok := o.accounts[key]; ok {
		return acct, nil
	}
	acct, err := o.store.Get(o.ctx, key)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		acct = newSystemAccount()
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	o.accounts[key] = acct
	o.original[key] = acct.Lamports
	return acct, nil
}

func (o *overlay) changes() map[solana.PublicKey]*Account {
	out := make(map[solana.PublicKey]*Account, len(o.dirty))
	for key := range o.dirty {
		out[key] = o.accounts[key]
	}
	return out
}

// balanced compares the touched accounts' totals as 128-bit sums.
func (o *overlay) balanced() bool {
	var beforeHi, beforeLo, afterHi, afterLo, carry uint64
	for key, acct := range o.accounts {
		beforeLo, carry = bits.Add64(beforeLo, o.original[key], 0)
		beforeHi += carry
		afterLo, carry = bits.Add64(afterLo, acct.Lamports, 0)
		afterHi += carry
	}
	return beforeHi == afterHi && beforeLo == afterLo
}

func credit(acct *Account, key solana.PublicKey, lamports uint64) error {
	if math.MaxUint64-acct.Lamports < lamports {
		return fmt.Errorf("%w: %s holds %d, credit %d", ErrLamportOverflow, key, acct.Lamports, lamports)
	}
	acct.Lamports += lamports
	return nil
}

// InvokeContext is what a program sees while it runs: the accounts it was
// handed with their privileges, and the operations the runtime allows on them.
type InvokeContext struct {
	ctx       context.Context
	bank      *Bank
	ov        *overlay
	programID solana.PublicKey
	accounts  []*solana.AccountMeta
	depth     int
	logs      *[]string
}

func (ic *InvokeContext) Context() context.Context { return ic.ctx }

func (ic *InvokeContext) ProgramID() solana.PublicKey { return ic.programID }

func (ic *InvokeContext) Logger() *zap.Logger {
	return ic.bank.log.With(zap.Stringer("program", ic.programID))
}

func (ic *InvokeContext) Rent() Rent { return ic.bank.rent }

// Log appends a line to the transaction's program log.
func (ic *InvokeContext) Log(format string, args ...any) {
	*ic.logs = append(*ic.logs, "Program log: "+fmt.Sprintf(format, args...))
}

// meta merges the privileges of every position key was passed at.
func (ic *InvokeContext) meta(key solana.PublicKey) (solana.AccountMeta, bool) {
	var (
		out   = solana.AccountMeta{PublicKey: key}
		found bool
	)
	for _, m := range ic.accounts {
		if m.PublicKey.Equals(key) {
			found = true
			out.IsSigner = out.IsSigner || m.IsSigner
			out.IsWritable = out.IsWritable || m.IsWritable
		}
	}
	return out, found
}

func (ic *InvokeContext) IsSigner(key solana.PublicKey) bool {
	m, ok := ic.meta(key)
	return ok && m.IsSigner
}

func (ic *InvokeContext) IsWritable(key solana.PublicKey) bool {
	m, ok := ic.meta(key)
	return ok && m.IsWritable
}

func (ic *InvokeContext) load(key solana.PublicKey) (*Account, error) {
	if _, ok := ic.meta(key); !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotPassed, key)
	}
	return ic.ov.load(key)
}

// Account returns a copy of an account passed to this invocation.
func (ic *InvokeContext) Account(key solana.PublicKey) (*Account, error) {
	acct, err := ic.load(key)
	if err != nil {
		return nil, err
	}
	return acct.Clone(), nil
}

// Exists reports whether key holds lamports or data.
func (ic *InvokeContext) Exists(key solana.PublicKey) (bool, error) {
	acct, err := ic.load(key)
	if err != nil {
		return false, err
	}
	return !acct.Empty(), nil
}

func (ic *InvokeContext) writable(key solana.PublicKey) (*Account, error) {
	acct, err := ic.load(key)
	if err != nil {
		return nil, err
	}
	if !ic.IsWritable(key) {
		return nil, fmt.Errorf("%w: %s", ErrReadonlyAccount, key)
	}
	return acct, nil
}

func (ic *InvokeContext) owned(key solana.PublicKey) (*Account, error) {
	acct, err := ic.writable(key)
	if err != nil {
		return nil, err
	}
	if !acct.Owner.Equals(ic.programID) {
		return nil, fmt.Errorf("%w: %s owned by %s", ErrExternalAccountModified, key, acct.Owner)
	}
	return acct, nil
}

// SetData overwrites the start of an owned account's data and zeroes the rest.
func (ic *InvokeContext) SetData(key solana.PublicKey, data []byte) error {
	acct, err := ic.owned(key)
	if err != nil {
		return err
	}
	if len(data) > len(acct.Data) {
		return fmt.Errorf("%w: %s has %d bytes, need %d", ErrAccountDataTooSmall, key, len(acct.Data), len(data))
	}
	n := copy(acct.Data, data)
	clear(acct.Data[n:])
	ic.ov.dirty[key] = true
	return nil
}

// Resize grows or shrinks an owned account's data. New bytes are zero.
func (ic *InvokeContext) Resize(key solana.PublicKey, size int) error {
	acct, err := ic.owned(key)
	if err != nil {
		return err
	}
	if size <= len(acct.Data) {
		acct.Data = acct.Data[:size]
	} else {
		acct.Data = append(acct.Data, make([]byte, size-len(acct.Data))...)
	}
	ic.ov.dirty[key] = true
	return nil
}

// Assign hands an owned account to another program.
func (ic *InvokeContext) Assign(key, owner solana.PublicKey) error {
	acct, err := ic.owned(key)
	if err != nil {
		return err
	}
	acct.Owner = owner
	ic.ov.dirty[key] = true
	return nil
}

// Debit takes lamports from an owned account.
func (ic *InvokeContext) Debit(key solana.PublicKey, lamports uint64) error {
	acct, err := ic.owned(key)
	if err != nil {
		return err
	}
	if acct.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientLamports, key, acct.Lamports, lamports)
	}
	acct.Lamports -= lamports
	ic.ov.dirty[key] = true
	return nil
}

// Credit adds lamports to any writable account.
func (ic *InvokeContext) Credit(key solana.PublicKey, lamports uint64) error {
	acct, err := ic.writable(key)
	if err != nil {
		return err
	}
	if err := credit(acct, key, lamports); err != nil {
		return err
	}
	ic.ov.dirty[key] = true
	return nil
}

func (ic *InvokeContext) Invoke(ix solana.Instruction) error {
	return ic.InvokeSigned(ix, nil)
}

// InvokeSignedWith is InvokeSigned with the account list the caller hands to
// the callee. The callee's program and every account the instruction names
// must be in infos.
func (ic *InvokeContext) InvokeSignedWith(ix solana.Instruction, infos []*solana.AccountMeta, signerSeeds [][][]byte) error {
	handed := func(key solana.PublicKey) bool {
		for _, info := range infos {
			if info.PublicKey.Equals(key) {
				return true
			}
		}
		return false
	}
	if programID := ix.ProgramID(); !handed(programID) {
		return fmt.Errorf("%w: program %s missing from account infos", ErrAccountNotPassed, programID)
	}
	for _, m := range ix.Accounts() {
		if !handed(m.PublicKey) {
			return fmt.Errorf("%w: %s missing from account infos", ErrAccountNotPassed, m.PublicKey)
		}
	}
	return ic.InvokeSigned(ix, signerSeeds)
}

// InvokeSigned calls another program. Each seed path in signerSeeds must
// derive, under the calling program, an address the callee may treat as a
// signer. Every other privilege must already be held by the caller.
func (ic *InvokeContext) InvokeSigned(ix solana.Instruction, signerSeeds [][][]byte) error {
	if ic.depth >= MaxInvokeDepth {
		return ErrCallDepth
	}
	if err := ic.ctx.Err(); err != nil {
		return err
	}

	signed := make([]solana.PublicKey, 0, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := solana.CreateProgramAddress(seeds, ic.programID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPrivilegeEscalation, err)
		}
		signed = append(signed, addr)
	}

	programID := ix.ProgramID()
	if _, ok := ic.meta(programID); !ok {
		return fmt.Errorf("%w: program %s", ErrAccountNotPassed, programID)
	}
	metas := ix.Accounts()
	for _, m := range metas {
		caller, ok := ic.meta(m.PublicKey)
		if !ok {
			return fmt.Errorf("%w: %s", ErrAccountNotPassed, m.PublicKey)
		}
		if m.IsWritable && !caller.IsWritable {
			return fmt.Errorf("%w: %s is not writable", ErrPrivilegeEscalation, m.PublicKey)
		}
		if m.IsSigner && !caller.IsSigner && !m.PublicKey.IsAnyOf(signed...) {
			return fmt.Errorf("%w: %s did not sign", ErrPrivilegeEscalation, m.PublicKey)
		}
	}

	data, err := ix.Data()
	if err != nil {
		return err
	}
	return ic.bank.run(ic.ctx, ic.ov, ic.logs, programID, metas, data, ic.depth+1)
}
