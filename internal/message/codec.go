package message

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// Instruction is one sub-operation inside a TransactionMessage. Both the
// program and the accounts are indexes into the message's AccountKeys.
type Instruction struct {
	ProgramIDIndex uint8
	AccountIndexes []uint8
	Data           []byte
}

// TransactionMessage is the compact, position-classified form of a batch of
// instructions. The position of a key in AccountKeys determines whether it
// signs and whether it is writable; see IsSigner and IsWritable.
type TransactionMessage struct {
	NumSigners            uint8
	NumWritableSigners    uint8
	NumWritableNonSigners uint8
	AccountKeys           []solana.PublicKey
	Instructions          []Instruction
}

func (ix Instruction) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint8(ix.ProgramIDIndex); err != nil {
		return err
	}
	if err := enc.WriteBytes(ix.AccountIndexes, true); err != nil {
		return err
	}
	return enc.WriteBytes(ix.Data, true)
}

func (ix *Instruction) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if ix.ProgramIDIndex, err = dec.ReadUint8(); err != nil {
		return fmt.Errorf("program id index: %w", err)
	}
	indexes, err := dec.ReadByteSlice()
	if err != nil {
		return fmt.Errorf("account indexes: %w", err)
	}
	data, err := dec.ReadByteSlice()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	ix.AccountIndexes = append([]uint8{}, indexes...)
	ix.Data = append([]byte{}, data...)
	return nil
}

func (m TransactionMessage) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, v := range []uint8{m.NumSigners, m.NumWritableSigners, m.NumWritableNonSigners} {
		if err := enc.WriteUint8(v); err != nil {
			return err
		}
	}
	if err := enc.WriteLength(len(m.AccountKeys)); err != nil {
		return err
	}
	for _, key := range m.AccountKeys {
		if err := enc.WriteBytes(key[:], false); err != nil {
			return err
		}
	}
	if err := enc.WriteLength(len(m.Instructions)); err != nil {
		return err
	}
	for _, ix := range m.Instructions {
		if err := ix.MarshalWithEncoder(enc); err != nil {
			return err
		}
	}
	return nil
}

func (m *TransactionMessage) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if m.NumSigners, err = dec.ReadUint8(); err != nil {
		return fmt.Errorf("num signers: %w", err)
	}
	if m.NumWritableSigners, err = dec.ReadUint8(); err != nil {
		return fmt.Errorf("num writable signers: %w", err)
	}
	if m.NumWritableNonSigners, err = dec.ReadUint8(); err != nil {
		return fmt.Errorf("num writable non-signers: %w", err)
	}

	numKeys, err := dec.ReadLength()
	if err != nil {
		return fmt.Errorf("account keys length: %w", err)
	}
	if numKeys > dec.Remaining()/solana.PublicKeyLength {
		return fmt.Errorf("account keys: %d keys declared, %d bytes remaining", numKeys, dec.Remaining())
	}
	m.AccountKeys = make([]solana.PublicKey, numKeys)
	for i := range m.AccountKeys {
		raw, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return fmt.Errorf("account key %d: %w", i, err)
		}
		m.AccountKeys[i] = solana.PublicKeyFromBytes(raw)
	}

	numInstructions, err := dec.ReadLength()
	if err != nil {
		return fmt.Errorf("instructions length: %w", err)
	}
	// every instruction is at least 9 bytes: index + two empty vec prefixes
	if numInstructions > dec.Remaining()/9 {
		return fmt.Errorf("instructions: %d declared, %d bytes remaining", numInstructions, dec.Remaining())
	}
	m.Instructions = make([]Instruction, numInstructions)
	for i := range m.Instructions {
		if err := m.Instructions[i].UnmarshalWithDecoder(dec); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return nil
}

// Encode serializes m into its Borsh form.
func Encode(m *TransactionMessage) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("failed to encode transaction message: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads a message from raw. Short input, bad lengths or trailing bytes
// fail with ErrMessageDecode; the result is not structurally validated.
func Decode(raw []byte) (*TransactionMessage, error) {
	dec := bin.NewBorshDecoder(raw)
	m := new(TransactionMessage)
	if err := m.UnmarshalWithDecoder(dec); err != nil {
		return nil, fmt.Errorf("%w: %v", vaulterr.ErrMessageDecode, err)
	}
	if dec.HasRemaining() {
		return nil, fmt.Errorf("%w: %d trailing bytes", vaulterr.ErrMessageDecode, dec.Remaining())
	}
	return m, nil
}

// Parse decodes raw and checks it is structurally sound.
func Parse(raw []byte) (*TransactionMessage, error) {
	m, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodedSize is the exact number of bytes Encode produces for m.
func EncodedSize(m *TransactionMessage) int {
	size := 3 + 4 + solana.PublicKeyLength*len(m.AccountKeys) + 4
	for _, ix := range m.Instructions {
		size += 1 + 4 + len(ix.AccountIndexes) + 4 + len(ix.Data)
	}
	return size
}

// MeasureEncoded returns the exact encoded size of the message in raw by
// walking its length prefixes, without building the message.
func MeasureEncoded(raw []byte) (int, error) {
	pos := 3
	if len(raw) < pos {
		return 0, fmt.Errorf("%w: header needs 3 bytes, have %d", vaulterr.ErrMessageDecode, len(raw))
	}
	readLen := func(what string) (int, error) {
		if len(raw)-pos < 4 {
			return 0, fmt.Errorf("%w: %s length at offset %d", vaulterr.ErrMessageDecode, what, pos)
		}
		n := int(bin.LE.Uint32(raw[pos:]))
		pos += 4
		return n, nil
	}
	skip := func(what string, n int) error {
		if n < 0 || len(raw)-pos < n {
			return fmt.Errorf("%w: %s needs %d bytes at offset %d", vaulterr.ErrMessageDecode, what, n, pos)
		}
		pos += n
		return nil
	}

	numKeys, err := readLen("account keys")
	if err != nil {
		return 0, err
	}
	if numKeys > len(raw)/solana.PublicKeyLength {
		return 0, fmt.Errorf("%w: %d account keys declared", vaulterr.ErrMessageDecode, numKeys)
	}
	if err := skip("account keys", numKeys*solana.PublicKeyLength); err != nil {
		return 0, err
	}
	numInstructions, err := readLen("instructions")
	if err != nil {
		return 0, err
	}
	for i := 0; i < numInstructions; i++ {
		if err := skip("program id index", 1); err != nil {
			return 0, err
		}
		for _, what := range []string{"account indexes", "data"} {
			n, err := readLen(what)
			if err != nil {
				return 0, err
			}
			if err := skip(what, n); err != nil {
				return 0, err
			}
		}
	}
	if pos != len(raw) {
		return 0, fmt.Errorf("%w: %d trailing bytes", vaulterr.ErrMessageDecode, len(raw)-pos)
	}
	return pos, nil
}
