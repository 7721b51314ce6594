package pda

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestDerivationsAreDeterministicAndOffCurve(t *testing.T) {
	require := require.New(t)
	r := NewResolver()
	createKey := solana.NewWallet().PublicKey()

	a, err := r.Vault(createKey)
	require.NoError(err)
	b, err := r.Vault(createKey)
	require.NoError(err)
	require.Equal(a.Address, b.Address)
	require.Equal(a.Bump, b.Bump)
	require.False(a.Address.IsOnCurve())

	fund, err := r.Fund(a.Address)
	require.NoError(err)
	require.NotEqual(a.Address, fund.Address)

	again, err := r.FundWithBump(a.Address, fund.Bump)
	require.NoError(err)
	require.Equal(fund.Address, again.Address)
}

func TestSignerSeedsRecreateAddress(t *testing.T) {
	r := NewResolver()
	vault := solana.NewWallet().PublicKey()

	tx, err := r.FounderTransaction(vault, 7)
	require.NoError(t, err)

	addr, err := solana.CreateProgramAddress(tx.SignerSeeds(), r.ProgramID())
	require.NoError(t, err)
	require.Equal(t, tx.Address, addr)
}

func TestFounderAndMemberNamespacesDiffer(t *testing.T) {
	r := NewResolver()
	vault := solana.NewWallet().PublicKey()

	f, err := r.FounderTransaction(vault, 1)
	require.NoError(t, err)
	m, err := r.MemberTransaction(vault, 1)
	require.NoError(t, err)
	require.NotEqual(t, f.Address, m.Address)
}

func TestEphemeralSignersRoundTripThroughBumps(t *testing.T) {
	require := require.New(t)
	r := NewResolver()
	tx := solana.NewWallet().PublicKey()

	signers, err := r.EphemeralSigners(tx, 3)
	require.NoError(err)
	require.Len(signers, 3)

	bumps := make([]uint8, len(signers))
	for i, s := range signers {
		bumps[i] = s.Bump
	}
	again, err := r.EphemeralSignersWithBumps(tx, bumps)
	require.NoError(err)
	for i := range signers {
		require.Equal(signers[i].Address, again[i].Address)
	}

	none, err := r.EphemeralSigners(tx, 0)
	require.NoError(err)
	require.Empty(none)
}

func TestCustomProgramID(t *testing.T) {
	other := solana.NewWallet().PublicKey()
	a, err := NewResolver().VaultConfig()
	require.NoError(t, err)
	b, err := NewResolver(other).VaultConfig()
	require.NoError(t, err)
	require.NotEqual(t, a.Address, b.Address)
}
