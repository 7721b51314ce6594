package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// MaxPermittedDataLength caps the size of any single account.
const MaxPermittedDataLength = 10 * 1024 * 1024

// SystemProgram is the native program that owns fresh addresses. It supports
// the subset of the system instruction set the vault needs.
type SystemProgram struct{}

func (SystemProgram) Process(ic *InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	inst, err := system.DecodeInstruction(accounts, data)
	if err != nil {
		return err
	}

	switch impl := inst.Impl.(type) {
	case *system.Transfer:
		if len(accounts) < 2 || impl.Lamports == nil {
			return fmt.Errorf("transfer: %w", ErrAccountNotPassed)
		}
		return transfer(ic, accounts[0].PublicKey, accounts[1].PublicKey, *impl.Lamports)

	case *system.CreateAccount:
		if len(accounts) < 2 || impl.Lamports == nil || impl.Space == nil || impl.Owner == nil {
			return fmt.Errorf("create account: %w", ErrAccountNotPassed)
		}
		from, to := accounts[0].PublicKey, accounts[1].PublicKey
		existing, err := ic.Account(to)
		if err != nil {
			return err
		}
		if existing.Lamports > 0 {
			return fmt.Errorf("%w: %s", ErrAccountInUse, to)
		}
		if err := allocate(ic, to, *impl.Space); err != nil {
			return err
		}
		if err := ic.Assign(to, *impl.Owner); err != nil {
			return err
		}
		return transfer(ic, from, to, *impl.Lamports)

	case *system.Allocate:
		if len(accounts) < 1 || impl.Space == nil {
			return fmt.Errorf("allocate: %w", ErrAccountNotPassed)
		}
		return allocate(ic, accounts[0].PublicKey, *impl.Space)

	case *system.Assign:
		if len(accounts) < 1 || impl.Owner == nil {
			return fmt.Errorf("assign: %w", ErrAccountNotPassed)
		}
		key := accounts[0].PublicKey
		if !ic.IsSigner(key) {
			return fmt.Errorf("assign: %w: %s", ErrMissingSignature, key)
		}
		return ic.Assign(key, *impl.Owner)

	default:
		return fmt.Errorf("unsupported system instruction %T", impl)
	}
}

func transfer(ic *InvokeContext, from, to solana.PublicKey, lamports uint64) error {
	if !ic.IsSigner(from) {
		return fmt.Errorf("transfer: %w: %s", ErrMissingSignature, from)
	}
	src, err := ic.Account(from)
	if err != nil {
		return err
	}
	if len(src.Data) > 0 {
		return fmt.Errorf("transfer: from %s must not carry data", from)
	}
	if err := ic.Debit(from, lamports); err != nil {
		return err
	}
	return ic.Credit(to, lamports)
}

// allocate gives a fresh, signing account its data region.
func allocate(ic *InvokeContext, key solana.PublicKey, space uint64) error {
	if !ic.IsSigner(key) {
		return fmt.Errorf("allocate: %w: %s", ErrMissingSignature, key)
	}
	acct, err := ic.Account(key)
	if err != nil {
		return err
	}
	if len(acct.Data) > 0 || !acct.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: %s", ErrAccountInUse, key)
	}
	if space > MaxPermittedDataLength {
		return fmt.Errorf("allocate: %d bytes exceeds %d", space, MaxPermittedDataLength)
	}
	return ic.Resize(key, int(space))
}
