package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/execution"
	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/message"
	"github.com/MBenz12/vault-x/internal/state"
	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// Accounts: transaction (w), vault (w), creator (ws), system_program.
func (p *Program) createFounderTransaction(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args CreateFounderTransactionArgs
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	list := accountList(accounts)
	keys := make([]solana.PublicKey, 4)
	for i, name := range []string{"transaction", "vault", "creator", "system_program"} {
		k, err := list.key(i, name)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	txKey, vaultKey, creator, systemProgram := keys[0], keys[1], keys[2], keys[3]

	v, _, err := p.loadVault(ic, vaultKey)
	if err != nil {
		return err
	}
	if !v.IsFounder(creator) {
		return fmt.Errorf("%w: %s", vaulterr.ErrFounderNotFound, creator)
	}
	if err := requireSigner(ic, creator, "creator"); err != nil {
		return err
	}
	if err := requireSystemProgram(systemProgram); err != nil {
		return err
	}

	msg, err := message.Parse(args.TransactionMessage)
	if err != nil {
		return err
	}
	size, err := state.FounderTransactionSize(args.EphemeralSigners, args.TransactionMessage, v.Founders.Len())
	if err != nil {
		return err
	}
	index, err := v.NextTransactionIndex()
	if err != nil {
		return err
	}
	txAuth, err := p.resolver.FounderTransaction(vaultKey, index)
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

	tx := &state.FounderTransaction{
		Creator:              creator,
		Vault:                vaultKey,
		TransactionIndex:     index,
		Status:               state.StatusActive,
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
	p.log.Info("founder transaction created",
		zap.Stringer("vault", vaultKey),
		zap.Uint32("index", index),
		zap.Int("instructions", len(msg.Instructions)),
	)
	return nil
}

// vote loads a founder transaction for a vote cast by a founder.
// Accounts: transaction (w), vault, founder (ws).
func (p *Program) vote(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, kind string, cast func(tx *state.FounderTransaction, founder solana.PublicKey, v *state.Vault) error) error {
	list := accountList(accounts)
	txKey, err := list.key(0, "transaction")
	if err != nil {
		return err
	}
	vaultKey, err := list.key(1, "vault")
	if err != nil {
		return err
	}
	founder, err := list.key(2, "founder")
	if err != nil {
		return err
	}
	v, _, err := p.loadVault(ic, vaultKey)
	if err != nil {
		return err
	}
	if !v.IsFounder(founder) {
		return fmt.Errorf("%w: %s", vaulterr.ErrFounderNotFound, founder)
	}
	if err := requireSigner(ic, founder, "founder"); err != nil {
		return err
	}
	tx, err := p.loadFounderTransaction(ic, txKey, vaultKey)
	if err != nil {
		return err
	}

	before := tx.Status
	if err := cast(tx, founder, v); err != nil {
		return err
	}
	if err := store(ic, txKey, tx); err != nil {
		return err
	}
	p.metrics.ObserveVote(kind)
	if tx.Status != before {
		ic.Log("Transaction %d is now %s", tx.TransactionIndex, tx.Status)
	}
	p.log.Debug("founder vote",
		zap.String("kind", kind),
		zap.Stringer("founder", founder),
		zap.Uint32("index", tx.TransactionIndex),
		zap.Stringer("status", tx.Status),
	)
	return nil
}

func (p *Program) approveFounderTransaction(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, _ []byte) error {
	return p.vote(ic, accounts, "approve", (*state.FounderTransaction).Approve)
}

func (p *Program) rejectFounderTransaction(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, _ []byte) error {
	return p.vote(ic, accounts, "reject", (*state.FounderTransaction).Reject)
}

func (p *Program) cancelFounderTransaction(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, _ []byte) error {
	return p.vote(ic, accounts, "cancel", (*state.FounderTransaction).Cancel)
}

// Accounts: transaction (w), vault, founder (ws), then every account the
// stored message names, in message order.
func (p *Program) executeFounderTransaction(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, _ []byte) error {
	list := accountList(accounts)
	txKey, err := list.key(0, "transaction")
	if err != nil {
		return err
	}
	vaultKey, err := list.key(1, "vault")
	if err != nil {
		return err
	}
	founder, err := list.key(2, "founder")
	if err != nil {
		return err
	}
	v, _, err := p.loadVault(ic, vaultKey)
	if err != nil {
		return err
	}
	if !v.IsFounder(founder) {
		return fmt.Errorf("%w: %s", vaulterr.ErrFounderNotFound, founder)
	}
	if err := requireSigner(ic, founder, "founder"); err != nil {
		return err
	}
	tx, err := p.loadFounderTransaction(ic, txKey, vaultKey)
	if err != nil {
		return err
	}
	if err := tx.CheckValid(v, state.StatusApproved); err != nil {
		return err
	}

	batch, err := p.batch(vaultKey, txKey, &tx.Message, tx.FundBump, tx.EphemeralSignerBumps, list.remaining(3))
	if err != nil {
		return err
	}
	err = p.engine(ic).Execute(ic.Context(), batch)
	p.metrics.ObserveExecution("founder", len(tx.Message.Instructions), err)
	if err != nil {
		return err
	}

	tx.Status = state.StatusExecuted
	if err := store(ic, txKey, tx); err != nil {
		return err
	}
	p.log.Info("founder transaction executed",
		zap.Stringer("vault", vaultKey),
		zap.Uint32("index", tx.TransactionIndex),
		zap.Stringer("fund", batch.Fund.Address),
	)
	return nil
}

// batch rebuilds the signing authorities a stored transaction was created
// with. The vault and the transaction itself are never writable by it.
func (p *Program) batch(vaultKey, txKey solana.PublicKey, msg *message.TransactionMessage, fundBump uint8, ephemeralBumps []uint8, remaining []*solana.AccountMeta) (execution.Batch, error) {
	fund, err := p.resolver.FundWithBump(vaultKey, fundBump)
	if err != nil {
		return execution.Batch{}, err
	}
	ephemerals, err := p.resolver.EphemeralSignersWithBumps(txKey, ephemeralBumps)
	if err != nil {
		return execution.Batch{}, err
	}
	return execution.Batch{
		Message:    msg,
		Accounts:   remaining,
		Fund:       fund,
		Ephemerals: ephemerals,
		Protected:  []solana.PublicKey{vaultKey, txKey},
	}, nil
}
