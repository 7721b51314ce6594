package allowlist

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"

	"github.com/MBenz12/vault-x/internal/ledger"
)

func keys(n int) []solana.PublicKey {
	out := make([]solana.PublicKey, n)
	for i := range out {
		out[i] = solana.NewWallet().PublicKey()
	}
	return out
}

func TestEmptyTreeRootIsZeroHash(t *testing.T) {
	tree, err := NewTree(3)
	require.NoError(t, err)
	zeros := ZeroHashes(3)
	require.Equal(t, zeros[3], tree.Root())
	require.Equal(t, hashPair(zeros[2], zeros[2]), zeros[3])
}

func TestProofsVerifyForEveryLeaf(t *testing.T) {
	members := keys(5)
	tree, err := NewTreeFromKeys(4, members...)
	require.NoError(t, err)
	root := tree.Root()

	for i, k := range members {
		proof, err := tree.Proof(uint32(i))
		require.NoError(t, err)
		require.Len(t, proof, 4)
		require.True(t, Verify(root, LeafFromKey(k), uint32(i), proof), "leaf %d", i)
		require.False(t, Verify(root, LeafFromKey(k), uint32(i+1), proof), "leaf %d at wrong index", i)
	}

	outsider := solana.NewWallet().PublicKey()
	proof, err := tree.Proof(0)
	require.NoError(t, err)
	require.False(t, Verify(root, LeafFromKey(outsider), 0, proof))

	_, err = tree.Proof(5)
	require.ErrorIs(t, err, ErrLeafIndex)
}

func TestTreeFull(t *testing.T) {
	tree, err := NewTreeFromKeys(1, keys(2)...)
	require.NoError(t, err)
	_, err = tree.Append(Node{})
	require.ErrorIs(t, err, ErrTreeFull)

	_, err = NewTree(0)
	require.ErrorIs(t, err, ErrInvalidDepth)
}

func TestIncrementalAppendMatchesTree(t *testing.T) {
	acct, err := newTreeAccount(solana.NewWallet().PublicKey(), 5, 4)
	require.NoError(t, err)
	tree, err := NewTree(5)
	require.NoError(t, err)
	require.Equal(t, tree.Root(), acct.Root())

	var roots []Node
	for _, k := range keys(9) {
		_, err := tree.Append(LeafFromKey(k))
		require.NoError(t, err)
		require.NoError(t, acct.Append(LeafFromKey(k)))
		require.Equal(t, tree.Root(), acct.Root())
		roots = append(roots, acct.Root())
	}

	// Only the last MaxBufferSize roots are remembered.
	require.True(t, acct.HasRoot(roots[8]))
	require.True(t, acct.HasRoot(roots[5]))
	require.False(t, acct.HasRoot(roots[4]))

	data, err := EncodeTreeAccount(acct)
	require.NoError(t, err)
	require.Len(t, data, TreeAccountSize(5, 4))
	decoded, err := DecodeTreeAccount(data)
	require.NoError(t, err)
	require.Equal(t, acct, decoded)
}

func TestProgramLifecycle(t *testing.T) {
	ctx := context.Background()
	bank := ledger.NewBank(ledger.NewMemoryStore())
	bank.Register(ProgramID, Program{})

	authority := solana.NewWallet().PublicKey()
	treeKey := solana.NewWallet().PublicKey()
	_, err := bank.Airdrop(ctx, authority, 1_000_000_000)
	require.NoError(t, err)

	size := TreeAccountSize(3, 8)
	create := system.NewCreateAccountInstruction(bank.Rent().MinimumBalance(size), uint64(size), ProgramID, authority, treeKey).Build()
	initIx, err := NewInitTreeInstruction(treeKey, authority, 3, 8)
	require.NoError(t, err)
	_, err = bank.Process(ctx, ledger.Transaction{
		Instructions: []solana.Instruction{create, initIx},
		Signers:      []solana.PublicKey{authority, treeKey},
	})
	require.NoError(t, err)

	members := keys(3)
	offline, err := NewTree(3)
	require.NoError(t, err)
	for _, m := range members {
		ix, err := NewAppendInstruction(treeKey, authority, LeafFromKey(m))
		require.NoError(t, err)
		_, err = bank.Process(ctx, ledger.Transaction{Instructions: []solana.Instruction{ix}, Signers: []solana.PublicKey{authority}})
		require.NoError(t, err)
		_, err = offline.Append(LeafFromKey(m))
		require.NoError(t, err)
	}

	stored, err := bank.Account(ctx, treeKey)
	require.NoError(t, err)
	onchain, err := DecodeTreeAccount(stored.Data)
	require.NoError(t, err)
	require.Equal(t, offline.Root(), onchain.Root())
	require.Equal(t, uint64(3), onchain.LeafCount)

	verify := func(leaf Node, index uint32, proof []Node) error {
		ix, err := NewVerifyLeafInstruction(treeKey, VerifyLeafArgs{Root: offline.Root(), Leaf: leaf, Index: index, Proof: proof})
		require.NoError(t, err)
		_, err = bank.Process(ctx, ledger.Transaction{Instructions: []solana.Instruction{ix}})
		return err
	}
	proof, err := offline.Proof(1)
	require.NoError(t, err)
	require.NoError(t, verify(LeafFromKey(members[1]), 1, proof))
	require.ErrorIs(t, verify(LeafFromKey(members[0]), 1, proof), ErrProofRejected)

	stranger := solana.NewWallet().PublicKey()
	ix, err := NewAppendInstruction(treeKey, stranger, LeafFromKey(stranger))
	require.NoError(t, err)
	_, err = bank.Process(ctx, ledger.Transaction{Instructions: []solana.Instruction{ix}, Signers: []solana.PublicKey{stranger}})
	require.ErrorIs(t, err, ErrAuthority)
}
