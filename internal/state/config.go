package state

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// VaultConfigSize is the fixed size of the configuration account.
const VaultConfigSize = DiscriminatorSize + 1 + 8 + 32 + 32

// VaultConfig is the program-wide singleton holding the vault creation fee
// and who collects it.
type VaultConfig struct {
	Bump        uint8
	CreationFee uint64
	Authority   solana.PublicKey
	Treasury    solana.PublicKey
}

func (c *VaultConfig) Discriminator() Discriminator { return DiscriminatorVaultConfig }

func (c *VaultConfig) SetAuthority(key solana.PublicKey) error {
	if key.IsZero() {
		return fmt.Errorf("%w: authority cannot be the default key", vaulterr.ErrInvalidAccount)
	}
	c.Authority = key
	return nil
}

func (c *VaultConfig) SetTreasury(key solana.PublicKey) error {
	if key.IsZero() {
		return fmt.Errorf("%w: treasury cannot be the default key", vaulterr.ErrInvalidAccount)
	}
	c.Treasury = key
	return nil
}

func (c VaultConfig) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint8(c.Bump); err != nil {
		return err
	}
	if err := enc.WriteUint64(c.CreationFee, bin.LE); err != nil {
		return err
	}
	if err := writeKey(enc, c.Authority); err != nil {
		return err
	}
	return writeKey(enc, c.Treasury)
}

func (c *VaultConfig) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if c.Bump, err = dec.ReadUint8(); err != nil {
		return err
	}
	if c.CreationFee, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if c.Authority, err = readKey(dec); err != nil {
		return err
	}
	c.Treasury, err = readKey(dec)
	return err
}
