package state

import (
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// MaxRoles bounds both the founder and the member lists.
const MaxRoles = math.MaxUint16

// Vault is the shared-custody record: who may vote, who may act without
// voting, and the counters that order and invalidate transactions.
type Vault struct {
	AllowlistTree         solana.PublicKey
	Administrator         solana.PublicKey
	Bump                  uint8
	CreateKey             solana.PublicKey
	Founders              KeySet
	Members               KeySet
	StaleTransactionIndex uint32
	FounderThreshold      uint16
	TransactionIndex      uint32
}

// VaultSize is the exact account size for a vault with the given roster sizes.
func VaultSize(founders, members int) int {
	return DiscriminatorSize +
		32 + // allowlist tree
		32 + // administrator
		1 + // bump
		32 + // create key
		keysSize(founders) +
		keysSize(members) +
		4 + // stale transaction index
		2 + // founder threshold
		4 // transaction index
}

// NewVault builds a vault from unsorted, possibly duplicated founders.
func NewVault(administrator, createKey, allowlistTree solana.PublicKey, bump uint8, founders []solana.PublicKey, threshold uint16) (*Vault, error) {
	set := NewKeySet(founders...)
	if set.Contains(administrator) {
		return nil, vaulterr.ErrAdminCannotBeFounder
	}
	if err := validateRoleCount(set, 1); err != nil {
		return nil, err
	}
	if threshold < 1 || int(threshold) > set.Len() {
		return nil, fmt.Errorf("%w: %d of %d", vaulterr.ErrInvalidFounderThreshold, threshold, set.Len())
	}
	return &Vault{
		AllowlistTree:    allowlistTree,
		Administrator:    administrator,
		Bump:             bump,
		CreateKey:        createKey,
		Founders:         set,
		Members:          KeySet{},
		FounderThreshold: threshold,
	}, nil
}

func validateRoleCount(roles KeySet, min int) error {
	if roles.Len() < min || roles.Len() > MaxRoles {
		return fmt.Errorf("%w: %d", vaulterr.ErrInvalidRoleCount, roles.Len())
	}
	return nil
}

func (v *Vault) Discriminator() Discriminator { return DiscriminatorVault }

func (v *Vault) Size() int {
	return VaultSize(v.Founders.Len(), v.Members.Len())
}

func (v *Vault) IsFounder(key solana.PublicKey) bool { return v.Founders.Contains(key) }

func (v *Vault) IsMember(key solana.PublicKey) bool { return v.Members.Contains(key) }

// IsStale reports whether a transaction created at index was invalidated by a
// later roster or threshold change.
func (v *Vault) IsStale(index uint32) bool {
	return index <= v.StaleTransactionIndex
}

// Validate checks the invariants that must hold after every mutation.
func (v *Vault) Validate() error {
	if v.FounderThreshold < 1 || int(v.FounderThreshold) > v.Founders.Len() {
		return fmt.Errorf("%w: %d of %d", vaulterr.ErrInvalidFounderThreshold, v.FounderThreshold, v.Founders.Len())
	}
	if v.StaleTransactionIndex > v.TransactionIndex {
		return fmt.Errorf("%w: %d > %d", vaulterr.ErrInvalidStaleTransactionIndex, v.StaleTransactionIndex, v.TransactionIndex)
	}
	if err := validateRoleCount(v.Founders, 1); err != nil {
		return err
	}
	return validateRoleCount(v.Members, 0)
}

// NextTransactionIndex reserves the next transaction index.
func (v *Vault) NextTransactionIndex() (uint32, error) {
	if v.TransactionIndex == math.MaxUint32 {
		return 0, vaulterr.ErrIndexOverflow
	}
	v.TransactionIndex++
	return v.TransactionIndex, nil
}

func (v *Vault) invalidateInFlight() error {
	v.StaleTransactionIndex = v.TransactionIndex
	return v.Validate()
}

func (v *Vault) AddFounder(key solana.PublicKey) error {
	if key.Equals(v.Administrator) {
		return vaulterr.ErrAdminCannotBeFounder
	}
	if !v.Founders.Insert(key) {
		return vaulterr.ErrFounderAlreadyExists
	}
	if err := validateRoleCount(v.Founders, 1); err != nil {
		return err
	}
	return v.invalidateInFlight()
}

// RemoveFounder drops key and optionally sets a new threshold in the same step,
// so a roster can shrink below the old threshold.
func (v *Vault) RemoveFounder(key solana.PublicKey, newThreshold *uint16) error {
	if !v.Founders.Remove(key) {
		return vaulterr.ErrFounderNotFound
	}
	if newThreshold != nil {
		if *newThreshold == 0 || int(*newThreshold) > v.Founders.Len() {
			return fmt.Errorf("%w: %d of %d", vaulterr.ErrInvalidFounderThreshold, *newThreshold, v.Founders.Len())
		}
		v.FounderThreshold = *newThreshold
	}
	return v.invalidateInFlight()
}

func (v *Vault) UpdateFounderThreshold(threshold uint16) error {
	if threshold < 1 || int(threshold) > v.Founders.Len() {
		return fmt.Errorf("%w: %d of %d", vaulterr.ErrInvalidFounderThreshold, threshold, v.Founders.Len())
	}
	v.FounderThreshold = threshold
	return v.invalidateInFlight()
}

func (v *Vault) AddMember(key solana.PublicKey) error {
	if key.Equals(v.Administrator) {
		return vaulterr.ErrAdminCannotBeMember
	}
	if !v.Members.Insert(key) {
		return vaulterr.ErrMemberAlreadyExists
	}
	if err := validateRoleCount(v.Members, 0); err != nil {
		return err
	}
	return v.invalidateInFlight()
}

func (v *Vault) RemoveMember(key solana.PublicKey) error {
	if !v.Members.Remove(key) {
		return vaulterr.ErrMemberNotFound
	}
	return v.invalidateInFlight()
}

func (v Vault) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, k := range []solana.PublicKey{v.AllowlistTree, v.Administrator} {
		if err := writeKey(enc, k); err != nil {
			return err
		}
	}
	if err := enc.WriteUint8(v.Bump); err != nil {
		return err
	}
	if err := writeKey(enc, v.CreateKey); err != nil {
		return err
	}
	if err := writeKeys(enc, v.Founders); err != nil {
		return err
	}
	if err := writeKeys(enc, v.Members); err != nil {
		return err
	}
	if err := enc.WriteUint32(v.StaleTransactionIndex, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint16(v.FounderThreshold, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint32(v.TransactionIndex, bin.LE)
}

func (v *Vault) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if v.AllowlistTree, err = readKey(dec); err != nil {
		return fmt.Errorf("allowlist tree: %w", err)
	}
	if v.Administrator, err = readKey(dec); err != nil {
		return fmt.Errorf("administrator: %w", err)
	}
	if v.Bump, err = dec.ReadUint8(); err != nil {
		return fmt.Errorf("bump: %w", err)
	}
	if v.CreateKey, err = readKey(dec); err != nil {
		return fmt.Errorf("create key: %w", err)
	}
	if v.Founders, err = readKeys(dec); err != nil {
		return fmt.Errorf("founders: %w", err)
	}
	if v.Members, err = readKeys(dec); err != nil {
		return fmt.Errorf("members: %w", err)
	}
	if v.StaleTransactionIndex, err = dec.ReadUint32(bin.LE); err != nil {
		return fmt.Errorf("stale transaction index: %w", err)
	}
	if v.FounderThreshold, err = dec.ReadUint16(bin.LE); err != nil {
		return fmt.Errorf("founder threshold: %w", err)
	}
	if v.TransactionIndex, err = dec.ReadUint32(bin.LE); err != nil {
		return fmt.Errorf("transaction index: %w", err)
	}
	return nil
}
