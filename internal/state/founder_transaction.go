package state

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/message"
	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// Status is the voting state of a founder transaction.
type Status uint8

const (
	StatusActive Status = iota
	StatusExecuted
	StatusRejected
	StatusCancelled
	StatusApproved
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExecuted:
		return "executed"
	case StatusRejected:
		return "rejected"
	case StatusCancelled:
		return "cancelled"
	case StatusApproved:
		return "approved"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusRejected || s == StatusCancelled
}

// FounderTransaction is a batch proposed by a founder that runs only after
// enough founders approve it.
type FounderTransaction struct {
	Creator              solana.PublicKey
	Vault                solana.PublicKey
	TransactionIndex     uint32
	Status               Status
	Bump                 uint8
	FundBump             uint8
	EphemeralSignerBumps []uint8
	Message              message.TransactionMessage
	Approved             KeySet
	Rejected             KeySet
	Cancelled            KeySet
}

// FounderTransactionSize is the exact account size for a transaction whose
// vote sets can each hold every founder.
func FounderTransactionSize(ephemeralSigners uint8, rawMessage []byte, founders int) (int, error) {
	messageSize, err := message.MeasureEncoded(rawMessage)
	if err != nil {
		return 0, err
	}
	return DiscriminatorSize +
		32 + // creator
		32 + // vault
		4 + // transaction index
		1 + // status
		1 + // bump
		1 + // fund bump
		(4 + int(ephemeralSigners)) +
		messageSize +
		3*keysSize(founders), nil
}

func (tx *FounderTransaction) Discriminator() Discriminator { return DiscriminatorFounderTransaction }

// CheckValid rejects any action on a stale transaction before looking at its
// status, so a transaction drafted under old rules cannot move even if it
// still reads Active.
func (tx *FounderTransaction) CheckValid(vault *Vault, allowed ...Status) error {
	if vault.IsStale(tx.TransactionIndex) {
		return fmt.Errorf("%w: index %d, watermark %d", vaulterr.ErrStaleTransaction, tx.TransactionIndex, vault.StaleTransactionIndex)
	}
	for _, s := range allowed {
		if tx.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", vaulterr.ErrInvalidTransactionStatus, tx.Status)
}

// Approve records founder's approval, withdrawing any earlier rejection.
// Approvals arriving after the threshold was reached are still recorded but
// leave the status at Approved.
func (tx *FounderTransaction) Approve(founder solana.PublicKey, vault *Vault) error {
	if err := tx.CheckValid(vault, StatusActive, StatusApproved); err != nil {
		return err
	}
	tx.Rejected.Remove(founder)
	if !tx.Approved.Insert(founder) {
		return vaulterr.ErrAlreadyApproved
	}
	if tx.Approved.Len() >= int(vault.FounderThreshold) {
		tx.Status = StatusApproved
	}
	return nil
}

// Reject records founder's rejection, withdrawing any earlier approval. The
// transaction is rejected once approval can no longer be reached.
func (tx *FounderTransaction) Reject(founder solana.PublicKey, vault *Vault) error {
	if err := tx.CheckValid(vault, StatusActive); err != nil {
		return err
	}
	tx.Approved.Remove(founder)
	if !tx.Rejected.Insert(founder) {
		return vaulterr.ErrAlreadyRejected
	}
	cutoff := vault.Founders.Len() - int(vault.FounderThreshold)
	if tx.Rejected.Len() >= cutoff {
		tx.Status = StatusRejected
	}
	return nil
}

// Cancel records founder's cancellation of an approved transaction.
func (tx *FounderTransaction) Cancel(founder solana.PublicKey, vault *Vault) error {
	if err := tx.CheckValid(vault, StatusApproved); err != nil {
		return err
	}
	if !tx.Cancelled.Insert(founder) {
		return vaulterr.ErrAlreadyCancelled
	}
	if tx.Cancelled.Len() >= int(vault.FounderThreshold) {
		tx.Status = StatusCancelled
	}
	return nil
}

func (tx FounderTransaction) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writeKey(enc, tx.Creator); err != nil {
		return err
	}
	if err := writeKey(enc, tx.Vault); err != nil {
		return err
	}
	if err := enc.WriteUint32(tx.TransactionIndex, bin.LE); err != nil {
		return err
	}
	for _, b := range []uint8{uint8(tx.Status), tx.Bump, tx.FundBump} {
		if err := enc.WriteUint8(b); err != nil {
			return err
		}
	}
	if err := enc.WriteBytes(tx.EphemeralSignerBumps, true); err != nil {
		return err
	}
	if err := tx.Message.MarshalWithEncoder(enc); err != nil {
		return err
	}
	for _, set := range []KeySet{tx.Approved, tx.Rejected, tx.Cancelled} {
		if err := writeKeys(enc, set); err != nil {
			return err
		}
	}
	return nil
}

func (tx *FounderTransaction) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if tx.Creator, err = readKey(dec); err != nil {
		return fmt.Errorf("creator: %w", err)
	}
	if tx.Vault, err = readKey(dec); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if tx.TransactionIndex, err = dec.ReadUint32(bin.LE); err != nil {
		return fmt.Errorf("transaction index: %w", err)
	}
	status, err := dec.ReadUint8()
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if status > uint8(StatusApproved) {
		return fmt.Errorf("status: unknown variant %d", status)
	}
	tx.Status = Status(status)
	if tx.Bump, err = dec.ReadUint8(); err != nil {
		return fmt.Errorf("bump: %w", err)
	}
	if tx.FundBump, err = dec.ReadUint8(); err != nil {
		return fmt.Errorf("fund bump: %w", err)
	}
	bumps, err := dec.ReadByteSlice()
	if err != nil {
		return fmt.Errorf("ephemeral signer bumps: %w", err)
	}
	tx.EphemeralSignerBumps = append([]uint8{}, bumps...)
	if err := tx.Message.UnmarshalWithDecoder(dec); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	if tx.Approved, err = readKeys(dec); err != nil {
		return fmt.Errorf("approved: %w", err)
	}
	if tx.Rejected, err = readKeys(dec); err != nil {
		return fmt.Errorf("rejected: %w", err)
	}
	if tx.Cancelled, err = readKeys(dec); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}
	return nil
}
