package pda

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// ProgramID is the address the vault program is deployed at.
var ProgramID = solana.MustPublicKeyFromBase58("GLdveVwYn2cSsuj5DTARPC8RLrTkCDRq484e8C91Zd7A")

var (
	seedPrefix             = []byte("vaultx")
	seedVault              = []byte("vault")
	seedVaultConfig        = []byte("vault_config")
	seedFounderTransaction = []byte("founder_transaction")
	seedMemberTransaction  = []byte("member_transaction")
	seedFund               = []byte("fund")
	seedEphemeralSigner    = []byte("ephemeral_signer")
)

// Authority is a derived address together with the path that proves it.
// Nobody holds a private key for Address; control is asserted by presenting
// Seeds plus Bump to the runtime.
type Authority struct {
	Address solana.PublicKey
	Bump    uint8
	Seeds   [][]byte
}

// SignerSeeds returns the seed path with the bump appended, the form
// the runtime expects when a program signs for the address.
func (a Authority) SignerSeeds() [][]byte {
	out := make([][]byte, 0, len(a.Seeds)+1)
	for _, s := range a.Seeds {
		out = append(out, append([]byte(nil), s...))
	}
	return append(out, []byte{a.Bump})
}

// Resolver derives every address the vault program owns.
type Resolver struct {
	programID solana.PublicKey
}

// NewResolver returns a resolver for programID, or for the default
// deployment when none is given.
func NewResolver(programID ...solana.PublicKey) *Resolver {
	pid := ProgramID
	if len(programID) > 0 {
		pid = programID[0]
	}
	return &Resolver{programID: pid}
}

func (r *Resolver) ProgramID() solana.PublicKey {
	return r.programID
}

func (r *Resolver) find(name string, seeds [][]byte) (Authority, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, r.programID)
	if err != nil {
		return Authority{}, fmt.Errorf("failed to find %s PDA: %v: %w", name, err, vaulterr.ErrDerivationFailed)
	}
	return Authority{Address: addr, Bump: bump, Seeds: seeds}, nil
}

// VaultConfig derives the global configuration record.
func (r *Resolver) VaultConfig() (Authority, error) {
	return r.find("vault config", [][]byte{seedPrefix, seedVaultConfig})
}

// Vault derives a vault from the one-time key used to create it.
func (r *Resolver) Vault(createKey solana.PublicKey) (Authority, error) {
	return r.find("vault", vaultSeeds(createKey))
}

// Fund derives the vault's spending authority.
func (r *Resolver) Fund(vault solana.PublicKey) (Authority, error) {
	return r.find("fund", fundSeeds(vault))
}

func (r *Resolver) FounderTransaction(vault solana.PublicKey, index uint32) (Authority, error) {
	return r.find("founder transaction", transactionSeeds(vault, seedFounderTransaction, index))
}

func (r *Resolver) MemberTransaction(vault solana.PublicKey, index uint32) (Authority, error) {
	return r.find("member transaction", transactionSeeds(vault, seedMemberTransaction, index))
}

// EphemeralSigner derives the index-th one-time signer stand-in of a transaction.
func (r *Resolver) EphemeralSigner(transaction solana.PublicKey, index uint8) (Authority, error) {
	return r.find("ephemeral signer", ephemeralSeeds(transaction, index))
}

// EphemeralSigners derives count ephemeral signers for a transaction, in index order.
func (r *Resolver) EphemeralSigners(transaction solana.PublicKey, count uint8) ([]Authority, error) {
	out := make([]Authority, 0, count)
	for i := uint8(0); i < count; i++ {
		a, err := r.EphemeralSigner(transaction, i)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Rederive recomputes an address from a stored bump without searching.
func (r *Resolver) Rederive(seeds [][]byte, bump uint8) (Authority, error) {
	withBump := append(append([][]byte{}, seeds...), []byte{bump})
	addr, err := solana.CreateProgramAddress(withBump, r.programID)
	if err != nil {
		return Authority{}, fmt.Errorf("failed to re-derive PDA: %v: %w", err, vaulterr.ErrDerivationFailed)
	}
	return Authority{Address: addr, Bump: bump, Seeds: seeds}, nil
}

func (r *Resolver) VaultWithBump(createKey solana.PublicKey, bump uint8) (Authority, error) {
	return r.Rederive(vaultSeeds(createKey), bump)
}

func (r *Resolver) FounderTransactionWithBump(vault solana.PublicKey, index uint32, bump uint8) (Authority, error) {
	return r.Rederive(transactionSeeds(vault, seedFounderTransaction, index), bump)
}

func (r *Resolver) MemberTransactionWithBump(vault solana.PublicKey, index uint32, bump uint8) (Authority, error) {
	return r.Rederive(transactionSeeds(vault, seedMemberTransaction, index), bump)
}

// FundWithBump re-derives the fund from the bump stored on a transaction.
func (r *Resolver) FundWithBump(vault solana.PublicKey, bump uint8) (Authority, error) {
	return r.Rederive(fundSeeds(vault), bump)
}

// EphemeralSignersWithBumps re-derives a transaction's ephemeral signers
// from their stored bumps.
func (r *Resolver) EphemeralSignersWithBumps(transaction solana.PublicKey, bumps []uint8) ([]Authority, error) {
	out := make([]Authority, 0, len(bumps))
	for i, bump := range bumps {
		a, err := r.Rederive(ephemeralSeeds(transaction, uint8(i)), bump)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func vaultSeeds(createKey solana.PublicKey) [][]byte {
	return [][]byte{seedPrefix, seedVault, createKey.Bytes()}
}

func transactionSeeds(vault solana.PublicKey, namespace []byte, index uint32) [][]byte {
	return [][]byte{seedPrefix, vault.Bytes(), namespace, uint32ToBytes(index)}
}

func fundSeeds(vault solana.PublicKey) [][]byte {
	return [][]byte{seedPrefix, vault.Bytes(), seedFund}
}

func ephemeralSeeds(transaction solana.PublicKey, index uint8) [][]byte {
	return [][]byte{seedPrefix, transaction.Bytes(), seedEphemeralSigner, {index}}
}

func uint32ToBytes(value uint32) []byte {
	bytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(bytes, value)
	return bytes
}
