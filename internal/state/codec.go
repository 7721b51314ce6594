package state

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const DiscriminatorSize = 8

// Discriminator is the 8-byte tag at the start of every account the program owns.
type Discriminator [DiscriminatorSize]byte

var (
	DiscriminatorVaultConfig        = accountDiscriminator("VaultConfig")
	DiscriminatorVault              = accountDiscriminator("Vault")
	DiscriminatorFounderTransaction = accountDiscriminator("VaultFounderTransaction")
	DiscriminatorMemberTransaction  = accountDiscriminator("VaultMemberTransaction")

	ErrInvalidDiscriminator = errors.New("invalid account discriminator")
)

func accountDiscriminator(name string) Discriminator {
	h := sha256.Sum256([]byte("account:" + name))
	var d Discriminator
	copy(d[:], h[:DiscriminatorSize])
	return d
}

// Discriminated is implemented by every stored record.
type Discriminated interface {
	bin.BinaryMarshaler
	bin.BinaryUnmarshaler
	Discriminator() Discriminator
}

// Marshal encodes a record with its discriminator prefix.
func Marshal(v Discriminated) ([]byte, error) {
	buf := new(bytes.Buffer)
	d := v.Discriminator()
	buf.Write(d[:])
	if err := v.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("failed to encode account: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data into v after checking the discriminator. Trailing
// bytes are allowed, since accounts may be allocated larger than needed.
func Unmarshal(data []byte, v Discriminated) error {
	if err := validateDiscriminator(data, v.Discriminator()); err != nil {
		return err
	}
	if err := v.UnmarshalWithDecoder(bin.NewBorshDecoder(data[DiscriminatorSize:])); err != nil {
		return fmt.Errorf("failed to decode account: %w", err)
	}
	return nil
}

// HasDiscriminator reports whether data starts with d.
func HasDiscriminator(data []byte, d Discriminator) bool {
	return len(data) >= DiscriminatorSize && bytes.Equal(data[:DiscriminatorSize], d[:])
}

func validateDiscriminator(data []byte, expected Discriminator) error {
	if len(data) < DiscriminatorSize {
		return fmt.Errorf("%w: data too short", ErrInvalidDiscriminator)
	}
	var got Discriminator
	copy(got[:], data[:DiscriminatorSize])
	if got != expected {
		return fmt.Errorf("%w: got %x, want %x", ErrInvalidDiscriminator, got, expected)
	}
	return nil
}

func writeKey(enc *bin.Encoder, key solana.PublicKey) error {
	return enc.WriteBytes(key[:], false)
}

func readKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}

func writeKeys(enc *bin.Encoder, keys []solana.PublicKey) error {
	if err := enc.WriteLength(len(keys)); err != nil {
		return err
	}
	for _, k := range keys {
		if err := writeKey(enc, k); err != nil {
			return err
		}
	}
	return nil
}

func readKeys(dec *bin.Decoder) (KeySet, error) {
	n, err := dec.ReadLength()
	if err != nil {
		return nil, err
	}
	if n > dec.Remaining()/solana.PublicKeyLength {
		return nil, fmt.Errorf("%d keys declared, %d bytes remaining", n, dec.Remaining())
	}
	keys := make(KeySet, n)
	for i := range keys {
		if keys[i], err = readKey(dec); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func keysSize(n int) int {
	return 4 + solana.PublicKeyLength*n
}
