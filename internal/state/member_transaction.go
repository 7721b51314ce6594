package state

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/message"
)

// MemberTransaction is a batch admitted by an allowlist proof at creation.
// It carries no votes and any member may execute it.
type MemberTransaction struct {
	Creator              solana.PublicKey
	Vault                solana.PublicKey
	TransactionIndex     uint32
	Bump                 uint8
	FundBump             uint8
	EphemeralSignerBumps []uint8
	Message              message.TransactionMessage
}

func MemberTransactionSize(ephemeralSigners uint8, rawMessage []byte) (int, error) {
	messageSize, err := message.MeasureEncoded(rawMessage)
	if err != nil {
		return 0, err
	}
	return DiscriminatorSize +
		32 + // creator
		32 + // vault
		4 + // transaction index
		1 + // bump
		1 + // fund bump
		(4 + int(ephemeralSigners)) +
		messageSize, nil
}

func (tx *MemberTransaction) Discriminator() Discriminator { return DiscriminatorMemberTransaction }

func (tx MemberTransaction) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writeKey(enc, tx.Creator); err != nil {
		return err
	}
	if err := writeKey(enc, tx.Vault); err != nil {
		return err
	}
	if err := enc.WriteUint32(tx.TransactionIndex, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint8(tx.Bump); err != nil {
		return err
	}
	if err := enc.WriteUint8(tx.FundBump); err != nil {
		return err
	}
	if err := enc.WriteBytes(tx.EphemeralSignerBumps, true); err != nil {
		return err
	}
	return tx.Message.MarshalWithEncoder(enc)
}

func (tx *MemberTransaction) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if tx.Creator, err = readKey(dec); err != nil {
		return fmt.Errorf("creator: %w", err)
	}
	if tx.Vault, err = readKey(dec); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if tx.TransactionIndex, err = dec.ReadUint32(bin.LE); err != nil {
		return fmt.Errorf("transaction index: %w", err)
	}
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
	return nil
}
