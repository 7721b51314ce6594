package allowlist

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// MaxDepth is the deepest tree the allowlist supports.
const MaxDepth = 30

var (
	ErrInvalidDepth = errors.New("tree depth out of range")
	ErrTreeFull     = errors.New("tree is full")
	ErrLeafIndex    = errors.New("leaf index out of range")
)

// Node is a leaf or an interior hash.
type Node [32]byte

// LeafFromKey uses the raw address bytes as the leaf.
func LeafFromKey(key solana.PublicKey) Node {
	return Node(key)
}

func (n Node) String() string {
	return solana.PublicKey(n).String()
}

func hashPair(left, right Node) Node {
	return Node(crypto.Keccak256Hash(left[:], right[:]))
}

// ZeroHashes returns the root of an empty subtree for every height up to depth.
func ZeroHashes(depth int) []Node {
	out := make([]Node, depth+1)
	for h := 1; h <= depth; h++ {
		out[h] = hashPair(out[h-1], out[h-1])
	}
	return out
}

// ComputeRoot folds proof into leaf. Bit i of index says whether the node at
// height i is a right child.
func ComputeRoot(leaf Node, index uint32, proof []Node) Node {
	node := leaf
	for i, sibling := range proof {
		if (index>>i)&1 == 0 {
			node = hashPair(node, sibling)
		} else {
			node = hashPair(sibling, node)
		}
	}
	return node
}

// Verify reports whether proof places leaf at index under root.
func Verify(root, leaf Node, index uint32, proof []Node) bool {
	if len(proof) > MaxDepth || uint64(index) >= uint64(1)<<len(proof) {
		return false
	}
	return ComputeRoot(leaf, index, proof) == root
}

// Tree is an in-memory allowlist builder used to compute roots and proofs
// off the ledger.
type Tree struct {
	depth  int
	leaves []Node
	zeros  []Node
}

func NewTree(depth int) (*Tree, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	return &Tree{depth: depth, zeros: ZeroHashes(depth)}, nil
}

// NewTreeFromKeys builds a tree holding keys in order.
func NewTreeFromKeys(depth int, keys ...solana.PublicKey) (*Tree, error) {
	t, err := NewTree(depth)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if _, err := t.Append(LeafFromKey(k)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) Depth() int { return t.depth }

func (t *Tree) Len() int { return len(t.leaves) }

// Append adds leaf at the next free index and returns that index.
func (t *Tree) Append(leaf Node) (uint32, error) {
	if uint64(len(t.leaves)) >= uint64(1)<<t.depth {
		return 0, ErrTreeFull
	}
	t.leaves = append(t.leaves, leaf)
	return uint32(len(t.leaves) - 1), nil
}

// IndexOf returns the first index holding leaf.
func (t *Tree) IndexOf(leaf Node) (uint32, bool) {
	for i, l := range t.leaves {
		if l == leaf {
			return uint32(i), true
		}
	}
	return 0, false
}

// parents hashes one level of nodes into the level above it. A missing
// right sibling is the empty subtree root for that height.
func (t *Tree) parents(nodes []Node, h int) []Node {
	next := make([]Node, 0, (len(nodes)+1)/2)
	for j := 0; j < len(nodes); j += 2 {
		right := t.zeros[h]
		if j+1 < len(nodes) {
			right = nodes[j+1]
		}
		next = append(next, hashPair(nodes[j], right))
	}
	return next
}

func (t *Tree) Root() Node {
	if len(t.leaves) == 0 {
		return t.zeros[t.depth]
	}
	nodes := t.leaves
	for h := 0; h < t.depth; h++ {
		nodes = t.parents(nodes, h)
	}
	return nodes[0]
}

// Proof returns the sibling path for the leaf at index, bottom up.
func (t *Tree) Proof(index uint32) ([]Node, error) {
	if int(index) >= len(t.leaves) {
		return nil, fmt.Errorf("%w: %d of %d", ErrLeafIndex, index, len(t.leaves))
	}
	proof := make([]Node, t.depth)
	nodes := t.leaves
	pos := int(index)
	for h := 0; h < t.depth; h++ {
		sibling := pos ^ 1
		if sibling < len(nodes) {
			proof[h] = nodes[sibling]
		} else {
			proof[h] = t.zeros[h]
		}
		nodes = t.parents(nodes, h)
		pos /= 2
	}
	return proof, nil
}
