package allowlist

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/ledger"
)

// ProgramID is the address the allowlist tree program runs under. Vaults only
// accept trees owned by it.
var ProgramID = solana.MustPublicKeyFromBase58("cmtDvXumGCrqC1Age74AVPhSRVXJMd8PJS91L8KbNCK")

// MaxBufferSize bounds how many recent roots a tree remembers.
const MaxBufferSize = 1024

var (
	ErrAlreadyInitialized = errors.New("tree account already initialized")
	ErrNotInitialized     = errors.New("tree account not initialized")
	ErrInvalidBufferSize  = errors.New("root buffer size out of range")
	ErrUnknownRoot        = errors.New("root is not in the tree's recent history")
	ErrProofRejected      = errors.New("leaf proof does not match root")
	ErrAuthority          = errors.New("signer is not the tree authority")
	ErrUnknownInstruction = errors.New("unknown allowlist instruction")
)

type discriminator [8]byte

func sighash(namespace, name string) discriminator {
	h := sha256.Sum256([]byte(namespace + ":" + name))
	var d discriminator
	copy(d[:], h[:8])
	return d
}

var (
	treeAccountDiscriminator = sighash("account", "AllowlistTree")

	initTreeDiscriminator   = sighash("global", "init_empty_merkle_tree")
	appendDiscriminator     = sighash("global", "append")
	verifyLeafDiscriminator = sighash("global", "verify_leaf")
)

// TreeAccount is the on-ledger state of an append-only allowlist. It keeps
// the right-most branch so appends cost O(depth), plus a ring of recent roots
// so proofs built against a slightly older root still verify.
type TreeAccount struct {
	Authority     solana.PublicKey
	MaxDepth      uint32
	MaxBufferSize uint32
	LeafCount     uint64
	// Sequence counts roots ever recorded; the latest is at (Sequence-1) % MaxBufferSize.
	Sequence uint64
	Branch   []Node
	Roots    []Node
}

// TreeAccountSize is the account size for a tree of the given shape.
func TreeAccountSize(maxDepth, maxBufferSize uint32) int {
	return 8 + 32 + 4 + 4 + 8 + 8 + 32*int(maxDepth) + 32*int(maxBufferSize)
}

func newTreeAccount(authority solana.PublicKey, maxDepth, maxBufferSize uint32) (*TreeAccount, error) {
	if maxDepth < 1 || maxDepth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, maxDepth)
	}
	if maxBufferSize < 1 || maxBufferSize > MaxBufferSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferSize, maxBufferSize)
	}
	t := &TreeAccount{
		Authority:     authority,
		MaxDepth:      maxDepth,
		MaxBufferSize: maxBufferSize,
		Branch:        make([]Node, maxDepth),
		Roots:         make([]Node, maxBufferSize),
	}
	t.pushRoot(ZeroHashes(int(maxDepth))[maxDepth])
	return t, nil
}

func (t *TreeAccount) pushRoot(root Node) {
	t.Roots[t.Sequence%uint64(t.MaxBufferSize)] = root
	t.Sequence++
}

// Root is the current root.
func (t *TreeAccount) Root() Node {
	return t.Roots[(t.Sequence-1)%uint64(t.MaxBufferSize)]
}

// HasRoot reports whether root is among the remembered roots.
func (t *TreeAccount) HasRoot(root Node) bool {
	n := t.Sequence
	if n > uint64(t.MaxBufferSize) {
		n = uint64(t.MaxBufferSize)
	}
	for i := uint64(0); i < n; i++ {
		if t.Roots[(t.Sequence-1-i)%uint64(t.MaxBufferSize)] == root {
			return true
		}
	}
	return false
}

// Append adds leaf using the incremental-tree update and records the new root.
func (t *TreeAccount) Append(leaf Node) error {
	if t.LeafCount >= uint64(1)<<t.MaxDepth {
		return ErrTreeFull
	}
	zeros := ZeroHashes(int(t.MaxDepth))

	t.LeafCount++
	node, size := leaf, t.LeafCount
	for h := 0; h < int(t.MaxDepth); h++ {
		if size&1 == 1 {
			t.Branch[h] = node
			break
		}
		node = hashPair(t.Branch[h], node)
		size >>= 1
	}

	root, size := Node{}, t.LeafCount
	for h := 0; h < int(t.MaxDepth); h++ {
		if size&1 == 1 {
			root = hashPair(t.Branch[h], root)
		} else {
			root = hashPair(root, zeros[h])
		}
		size >>= 1
	}
	t.pushRoot(root)
	return nil
}

func (t TreeAccount) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(t.Authority[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint32(t.MaxDepth, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint32(t.MaxBufferSize, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(t.LeafCount, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(t.Sequence, bin.LE); err != nil {
		return err
	}
	for _, nodes := range [][]Node{t.Branch, t.Roots} {
		for _, n := range nodes {
			if err := enc.WriteBytes(n[:], false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *TreeAccount) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	t.Authority = solana.PublicKeyFromBytes(raw)
	if t.MaxDepth, err = dec.ReadUint32(bin.LE); err != nil {
		return fmt.Errorf("max depth: %w", err)
	}
	if t.MaxBufferSize, err = dec.ReadUint32(bin.LE); err != nil {
		return fmt.Errorf("max buffer size: %w", err)
	}
	if t.MaxDepth < 1 || t.MaxDepth > MaxDepth || t.MaxBufferSize < 1 || t.MaxBufferSize > MaxBufferSize {
		return fmt.Errorf("corrupt tree shape %d/%d", t.MaxDepth, t.MaxBufferSize)
	}
	if t.LeafCount, err = dec.ReadUint64(bin.LE); err != nil {
		return fmt.Errorf("leaf count: %w", err)
	}
	if t.Sequence, err = dec.ReadUint64(bin.LE); err != nil {
		return fmt.Errorf("sequence: %w", err)
	}
	if t.Branch, err = readNodes(dec, int(t.MaxDepth)); err != nil {
		return fmt.Errorf("branch: %w", err)
	}
	if t.Roots, err = readNodes(dec, int(t.MaxBufferSize)); err != nil {
		return fmt.Errorf("roots: %w", err)
	}
	return nil
}

func readNodes(dec *bin.Decoder, n int) ([]Node, error) {
	out := make([]Node, n)
	for i := range out {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, err
		}
		copy(out[i][:], raw)
	}
	return out, nil
}

// EncodeTreeAccount returns the account data for t, discriminator included.
func EncodeTreeAccount(t *TreeAccount) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(treeAccountDiscriminator[:])
	if err := t.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeTreeAccount parses account data written by the allowlist program.
func DecodeTreeAccount(data []byte) (*TreeAccount, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], treeAccountDiscriminator[:]) {
		return nil, ErrNotInitialized
	}
	t := new(TreeAccount)
	if err := t.UnmarshalWithDecoder(bin.NewBorshDecoder(data[8:])); err != nil {
		return nil, err
	}
	return t, nil
}

// Program is the native allowlist tree program.
type Program struct{}

var _ ledger.Program = Program{}

func (Program) Process(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	if len(data) < 8 {
		return ErrUnknownInstruction
	}
	var d discriminator
	copy(d[:], data[:8])
	dec := bin.NewBorshDecoder(data[8:])

	switch d {
	case initTreeDiscriminator:
		return processInit(ic, accounts, dec)
	case appendDiscriminator:
		return processAppend(ic, accounts, dec)
	case verifyLeafDiscriminator:
		return processVerifyLeaf(ic, accounts, dec)
	default:
		return fmt.Errorf("%w: %x", ErrUnknownInstruction, d)
	}
}

func loadTree(ic *ledger.InvokeContext, key solana.PublicKey) (*TreeAccount, error) {
	acct, err := ic.Account(key)
	if err != nil {
		return nil, err
	}
	if !acct.Owner.Equals(ic.ProgramID()) {
		return nil, fmt.Errorf("%w: tree %s owned by %s", ledger.ErrExternalAccountModified, key, acct.Owner)
	}
	return DecodeTreeAccount(acct.Data)
}

func storeTree(ic *ledger.InvokeContext, key solana.PublicKey, t *TreeAccount) error {
	data, err := EncodeTreeAccount(t)
	if err != nil {
		return err
	}
	return ic.SetData(key, data)
}

func processInit(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, dec *bin.Decoder) error {
	if len(accounts) < 2 {
		return ledger.ErrAccountNotPassed
	}
	tree, authority := accounts[0].PublicKey, accounts[1].PublicKey
	if !ic.IsSigner(authority) {
		return fmt.Errorf("%w: %s", ledger.ErrMissingSignature, authority)
	}
	maxDepth, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	maxBufferSize, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return err
	}

	acct, err := ic.Account(tree)
	if err != nil {
		return err
	}
	if bytes.HasPrefix(acct.Data, treeAccountDiscriminator[:]) {
		return ErrAlreadyInitialized
	}
	t, err := newTreeAccount(authority, maxDepth, maxBufferSize)
	if err != nil {
		return err
	}
	if err := storeTree(ic, tree, t); err != nil {
		return err
	}
	ic.Log("initialized allowlist tree depth=%d buffer=%d", maxDepth, maxBufferSize)
	return nil
}

func processAppend(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, dec *bin.Decoder) error {
	if len(accounts) < 2 {
		return ledger.ErrAccountNotPassed
	}
	tree, authority := accounts[0].PublicKey, accounts[1].PublicKey
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return err
	}
	t, err := loadTree(ic, tree)
	if err != nil {
		return err
	}
	if !ic.IsSigner(authority) || !authority.Equals(t.Authority) {
		return ErrAuthority
	}
	if err := t.Append(Node(raw)); err != nil {
		return err
	}
	return storeTree(ic, tree, t)
}

// VerifyLeafArgs are the arguments of verify_leaf.
type VerifyLeafArgs struct {
	Root  Node
	Leaf  Node
	Index uint32
	Proof []Node
}

func (a VerifyLeafArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(a.Root[:], false); err != nil {
		return err
	}
	if err := enc.WriteBytes(a.Leaf[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint32(a.Index, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteLength(len(a.Proof)); err != nil {
		return err
	}
	for _, n := range a.Proof {
		if err := enc.WriteBytes(n[:], false); err != nil {
			return err
		}
	}
	return nil
}

func (a *VerifyLeafArgs) UnmarshalWithDecoder(dec *bin.Decoder) error {
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return err
	}
	a.Root = Node(raw)
	if raw, err = dec.ReadNBytes(32); err != nil {
		return err
	}
	a.Leaf = Node(raw)
	if a.Index, err = dec.ReadUint32(bin.LE); err != nil {
		return err
	}
	n, err := dec.ReadLength()
	if err != nil {
		return err
	}
	if n > MaxDepth {
		return fmt.Errorf("proof of %d nodes exceeds depth %d", n, MaxDepth)
	}
	if a.Proof, err = readNodes(dec, n); err != nil {
		return err
	}
	return nil
}

func processVerifyLeaf(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, dec *bin.Decoder) error {
	if len(accounts) < 1 {
		return ledger.ErrAccountNotPassed
	}
	var args VerifyLeafArgs
	if err := args.UnmarshalWithDecoder(dec); err != nil {
		return err
	}
	t, err := loadTree(ic, accounts[0].PublicKey)
	if err != nil {
		return err
	}
	if !t.HasRoot(args.Root) {
		return fmt.Errorf("%w: %s", ErrUnknownRoot, args.Root)
	}
	if len(args.Proof) != int(t.MaxDepth) || !Verify(args.Root, args.Leaf, args.Index, args.Proof) {
		return ErrProofRejected
	}
	return nil
}

func instruction(d discriminator, accounts solana.AccountMetaSlice, args bin.BinaryMarshaler) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	buf.Write(d[:])
	if args != nil {
		if err := args.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
			return nil, err
		}
	}
	return solana.NewInstruction(ProgramID, accounts, buf.Bytes()), nil
}

type initArgs struct {
	maxDepth, maxBufferSize uint32
}

func (a initArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint32(a.maxDepth, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint32(a.maxBufferSize, bin.LE)
}

type appendArgs struct{ leaf Node }

func (a appendArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteBytes(a.leaf[:], false)
}

// NewInitTreeInstruction initializes tree, which must already be allocated
// with TreeAccountSize bytes and owned by ProgramID.
func NewInitTreeInstruction(tree, authority solana.PublicKey, maxDepth, maxBufferSize uint32) (solana.Instruction, error) {
	return instruction(initTreeDiscriminator, solana.AccountMetaSlice{
		solana.Meta(tree).WRITE(),
		solana.Meta(authority).SIGNER(),
	}, initArgs{maxDepth, maxBufferSize})
}

func NewAppendInstruction(tree, authority solana.PublicKey, leaf Node) (solana.Instruction, error) {
	return instruction(appendDiscriminator, solana.AccountMetaSlice{
		solana.Meta(tree).WRITE(),
		solana.Meta(authority).SIGNER(),
	}, appendArgs{leaf})
}

func NewVerifyLeafInstruction(tree solana.PublicKey, args VerifyLeafArgs) (solana.Instruction, error) {
	return instruction(verifyLeafDiscriminator, solana.AccountMetaSlice{
		solana.Meta(tree),
	}, args)
}
