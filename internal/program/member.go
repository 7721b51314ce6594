package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/allowlist"
	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/message"
	"github.com/MBenz12/vault-x/internal/pda"
	"github.com/MBenz12/vault-x/internal/state"
	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// Accounts: transaction (w), vault (w), creator (ws), merkle_tree,
// allowlist_program, system_program.
func (p *Program) createMemberTransaction(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args CreateMemberTransactionArgs
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	list := accountList(accounts)
	keys := make([]solana.PublicKey, 6)
	for i, name := range []string{"transaction", "vault", "creator", "merkle_tree", "allowlist_program", "system_program"} {
		k, err := list.key(i, name)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	txKey, vaultKey, creator, merkleTree, allowlistProgram, systemProgram :=
		keys[0], keys[1], keys[2], keys[3], keys[4], keys[5]

	v, _, err := p.loadVault(ic, vaultKey)
	if err != nil {
		return err
	}
	if !v.IsMember(creator) {
		return fmt.Errorf("%w: %s", vaulterr.ErrMemberNotFound, creator)
	}
	if err := requireSigner(ic, creator, "creator"); err != nil {
		return err
	}
	tree, err := ic.Account(merkleTree)
	if err != nil {
		return err
	}
	if !tree.Owner.Equals(allowlist.ProgramID) {
		return fmt.Errorf("%w: tree %s owned by %s", vaulterr.ErrInvalidAllowlist, merkleTree, tree.Owner)
	}
	if !merkleTree.Equals(v.AllowlistTree) {
		return fmt.Errorf("%w: vault uses tree %s, got %s", vaulterr.ErrInvalidAllowlist, v.AllowlistTree, merkleTree)
	}
	if !allowlistProgram.Equals(allowlist.ProgramID) {
		return fmt.Errorf("%w: expected allowlist program, got %s", vaulterr.ErrInvalidProgram, allowlistProgram)
	}
	if err := requireSystemProgram(systemProgram); err != nil {
		return err
	}

	proof := make([]allowlist.Node, len(args.AllowlistProof))
	for i, n := range args.AllowlistProof {
		proof[i] = n
	}
	err = allowlist.NewInvokeVerifier(ic).VerifyLeaf(merkleTree, allowlist.VerifyLeafArgs{
		Root:  args.AllowlistRoot,
		Leaf:  args.AllowlistLeaf,
		Index: args.AllowlistLeafIndex,
		Proof: proof,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", vaulterr.ErrInvalidProof, err)
	}

	msg, err := message.Parse(args.TransactionMessage)
	if err != nil {
		return err
	}
	size, err := state.MemberTransactionSize(args.EphemeralSigners, args.TransactionMessage)
	if err != nil {
		return err
	}
	index, err := v.NextTransactionIndex()
	if err != nil {
		return err
	}
	txAuth, err := p.resolver.MemberTransaction(vaultKey, index)
	if err != nil {
		return err
	}
	if !txKey.Equals(txAuth.Address) {
		return fmt.Errorf("%w: transaction %s, expected %s for index %d", vaulterr.ErrInvalidAccount, txKey, txAuth.Address, index)
	}
	fund, err := p.resolver.Fund(vaultKey)
	if err != nil {
		return err
	}
	ephemerals, err := p.resolver.EphemeralSigners(txKey, args.EphemeralSigners)
	if err != nil {
		return err
	}

	tx := &state.MemberTransaction{
		Creator:              creator,
		Vault:                vaultKey,
		TransactionIndex:     index,
		Bump:                 txAuth.Bump,
		FundBump:             fund.Bump,
		EphemeralSignerBumps: bumps(ephemerals),
		Message:              *msg,
	}
	if err := p.initAccount(ic, creator, txAuth, size); err != nil {
		return err
	}
	if err := store(ic, txKey, tx); err != nil {
		return err
	}
	if err := store(ic, vaultKey, v); err != nil {
		return err
	}
	p.log.Info("member transaction created",
		zap.Stringer("vault", vaultKey),
		zap.Stringer("creator", creator),
		zap.Uint32("index", index),
	)
	return nil
}

// Accounts: transaction (w), vault, member (ws), then every account the
// stored message names. A member transaction has no status and may run again.
func (p *Program) executeMemberTransaction(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, _ []byte) error {
	list := accountList(accounts)
	txKey, err := list.key(0, "transaction")
	if err != nil {
		return err
	}
	vaultKey, err := list.key(1, "vault")
	if err != nil {
		return err
	}
	member, err := list.key(2, "member")
	if err != nil {
		return err
	}
	v, _, err := p.loadVault(ic, vaultKey)
	if err != nil {
		return err
	}
	if !v.IsMember(member) {
		return fmt.Errorf("%w: %s", vaulterr.ErrMemberNotFound, member)
	}
	if err := requireSigner(ic, member, "member"); err != nil {
		return err
	}
	tx, err := p.loadMemberTransaction(ic, txKey, vaultKey)
	if err != nil {
		return err
	}

	batch, err := p.batch(vaultKey, txKey, &tx.Message, tx.FundBump, tx.EphemeralSignerBumps, list.remaining(3))
	if err != nil {
		return err
	}
	err = p.engine(ic).Execute(ic.Context(), batch)
	p.metrics.ObserveExecution("member", len(tx.Message.Instructions), err)
	if err != nil {
		return err
	}
	p.log.Info("member transaction executed",
		zap.Stringer("vault", vaultKey),
		zap.Stringer("member", member),
		zap.Uint32("index", tx.TransactionIndex),
	)
	return nil
}

func bumps(authorities []pda.Authority) []uint8 {
	out := make([]uint8, len(authorities))
	for i, a := range authorities {
		out[i] = a.Bump
	}
	return out
}
