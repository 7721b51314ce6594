package message

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// Permission is the class a position in AccountKeys falls into.
type Permission uint8

const (
	WritableSigner Permission = iota
	ReadonlySigner
	WritableNonSigner
	ReadonlyNonSigner
)

func (p Permission) String() string {
	switch p {
	case WritableSigner:
		return "writable signer"
	case ReadonlySigner:
		return "readonly signer"
	case WritableNonSigner:
		return "writable"
	default:
		return "readonly"
	}
}

// IsSigner reports whether the key at index must sign.
func (m *TransactionMessage) IsSigner(index int) bool {
	return index < int(m.NumSigners)
}

// IsWritable reports whether the key at index may be written.
func (m *TransactionMessage) IsWritable(index int) bool {
	if index < int(m.NumSigners) {
		return index < int(m.NumWritableSigners)
	}
	return index-int(m.NumSigners) < int(m.NumWritableNonSigners)
}

func (m *TransactionMessage) Permission(index int) Permission {
	switch {
	case m.IsSigner(index) && m.IsWritable(index):
		return WritableSigner
	case m.IsSigner(index):
		return ReadonlySigner
	case m.IsWritable(index):
		return WritableNonSigner
	default:
		return ReadonlyNonSigner
	}
}

// Validate checks the counters agree with the key list and every instruction
// index points into it. Any violation is reported as ErrMalformedMessage.
func (m *TransactionMessage) Validate() error {
	numKeys := len(m.AccountKeys)
	numSigners := int(m.NumSigners)

	if numSigners > numKeys {
		return fmt.Errorf("%w: %d signers but %d account keys", vaulterr.ErrMalformedMessage, numSigners, numKeys)
	}
	if m.NumWritableSigners > m.NumSigners {
		return fmt.Errorf("%w: %d writable signers exceed %d signers", vaulterr.ErrMalformedMessage, m.NumWritableSigners, m.NumSigners)
	}
	if int(m.NumWritableNonSigners) > numKeys-numSigners {
		return fmt.Errorf("%w: %d writable non-signers exceed %d non-signers", vaulterr.ErrMalformedMessage, m.NumWritableNonSigners, numKeys-numSigners)
	}
	for i, ix := range m.Instructions {
		if int(ix.ProgramIDIndex) >= numKeys {
			return fmt.Errorf("%w: instruction %d program index %d out of range", vaulterr.ErrMalformedMessage, i, ix.ProgramIDIndex)
		}
		for _, idx := range ix.AccountIndexes {
			if int(idx) >= numKeys {
				return fmt.Errorf("%w: instruction %d account index %d out of range", vaulterr.ErrMalformedMessage, i, idx)
			}
		}
	}
	return nil
}

// ValidateAccounts checks the accounts presented at execution time against
// the message: same length, same keys in the same order, and at least the
// permissions the message declares. The fund and ephemeral authorities are
// exempt from the signer flag because the program signs for them.
func (m *TransactionMessage) ValidateAccounts(presented []*solana.AccountMeta, fund solana.PublicKey, ephemerals []solana.PublicKey) error {
	if len(presented) != len(m.AccountKeys) {
		return fmt.Errorf("%w: expected %d accounts, got %d", vaulterr.ErrAccountMismatch, len(m.AccountKeys), len(presented))
	}
	for i, acct := range presented {
		if acct == nil || !acct.PublicKey.Equals(m.AccountKeys[i]) {
			return fmt.Errorf("%w: account %d is not %s", vaulterr.ErrAccountMismatch, i, m.AccountKeys[i])
		}
		if m.IsSigner(i) && !acct.IsSigner && !acct.PublicKey.Equals(fund) && !acct.PublicKey.IsAnyOf(ephemerals...) {
			return fmt.Errorf("%w: account %d must sign", vaulterr.ErrAccountMismatch, i)
		}
		if m.IsWritable(i) && !acct.IsWritable {
			return fmt.Errorf("%w: account %d must be writable", vaulterr.ErrAccountMismatch, i)
		}
	}
	return nil
}
