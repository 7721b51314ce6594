package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/allowlist"
	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/state"
	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// Accounts: vault_config, treasury (w), merkle_tree, vault (w), create_key (s),
// administrator (ws), system_program.
func (p *Program) createVault(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args CreateVaultArgs
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	list := accountList(accounts)
	keys := make([]solana.PublicKey, 7)
	for i, name := range []string{"vault_config", "treasury", "merkle_tree", "vault", "create_key", "administrator", "system_program"} {
		k, err := list.key(i, name)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	configKey, treasury, merkleTree, vaultKey, createKey, administrator, systemProgram :=
		keys[0], keys[1], keys[2], keys[3], keys[4], keys[5], keys[6]

	cfg, err := p.loadConfig(ic, configKey)
	if err != nil {
		return err
	}
	if !treasury.Equals(cfg.Treasury) {
		return fmt.Errorf("%w: treasury %s, config has %s", vaulterr.ErrInvalidAccount, treasury, cfg.Treasury)
	}
	tree, err := ic.Account(merkleTree)
	if err != nil {
		return err
	}
	if !tree.Owner.Equals(allowlist.ProgramID) {
		return fmt.Errorf("%w: tree %s owned by %s", vaulterr.ErrInvalidAllowlist, merkleTree, tree.Owner)
	}
	if err := requireSigner(ic, createKey, "create key"); err != nil {
		return err
	}
	if err := requireSigner(ic, administrator, "administrator"); err != nil {
		return err
	}
	if err := requireSystemProgram(systemProgram); err != nil {
		return err
	}

	vaultAuth, err := p.resolver.Vault(createKey)
	if err != nil {
		return err
	}
	if !vaultKey.Equals(vaultAuth.Address) {
		return fmt.Errorf("%w: vault %s, expected %s", vaulterr.ErrInvalidAccount, vaultKey, vaultAuth.Address)
	}
	v, err := state.NewVault(administrator, createKey, merkleTree, vaultAuth.Bump, args.InitialFounders, args.FounderThreshold)
	if err != nil {
		return err
	}
	if err := p.initAccount(ic, administrator, vaultAuth, v.Size()); err != nil {
		return err
	}
	if err := store(ic, vaultKey, v); err != nil {
		return err
	}

	if cfg.CreationFee > 0 {
		ic.Log("Creation fee lamports: %d", cfg.CreationFee)
		ix := system.NewTransferInstruction(cfg.CreationFee, administrator, treasury).Build()
		if err := ic.Invoke(ix); err != nil {
			return mapLedgerError(err)
		}
	}
	p.log.Info("vault created",
		zap.Stringer("vault", vaultKey),
		zap.Int("founders", v.Founders.Len()),
		zap.Uint16("threshold", v.FounderThreshold),
		zap.Uint64("creation_fee", cfg.CreationFee),
	)
	return nil
}

type rosterAuthority int

const (
	byAdministrator rosterAuthority = iota
	byFounder
)

// mutateVault applies a roster or threshold change signed by the party
// allowed to make it, grows the account if the roster grew, and stores it.
// Accounts: vault (w), signer (s), optional rent_payer (ws), optional system_program.
func (p *Program) mutateVault(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, by rosterAuthority, mutate func(*state.Vault) error) error {
	list := accountList(accounts)
	vaultKey, err := list.key(0, "vault")
	if err != nil {
		return err
	}
	signer, err := list.key(1, "signer")
	if err != nil {
		return err
	}
	v, _, err := p.loadVault(ic, vaultKey)
	if err != nil {
		return err
	}
	switch by {
	case byAdministrator:
		if !signer.Equals(v.Administrator) {
			return fmt.Errorf("%w: %s is not the administrator", vaulterr.ErrUnauthorized, signer)
		}
	case byFounder:
		if !v.IsFounder(signer) {
			return fmt.Errorf("%w: %s", vaulterr.ErrFounderNotFound, signer)
		}
	}
	if err := requireSigner(ic, signer, "signer"); err != nil {
		return err
	}

	if err := mutate(v); err != nil {
		return err
	}
	grown, err := reallocIfNeeded(ic, vaultKey, v.Size(), list.optional(2, p.ID()), list.optional(3, p.ID()))
	if err != nil {
		return err
	}
	if err := store(ic, vaultKey, v); err != nil {
		return err
	}
	p.log.Debug("vault updated",
		zap.Stringer("vault", vaultKey),
		zap.Int("founders", v.Founders.Len()),
		zap.Int("members", v.Members.Len()),
		zap.Uint16("threshold", v.FounderThreshold),
		zap.Uint32("stale_transaction_index", v.StaleTransactionIndex),
		zap.Bool("reallocated", grown),
	)
	return nil
}

func (p *Program) addFounder(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args KeyArg
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	return p.mutateVault(ic, accounts, byAdministrator, func(v *state.Vault) error {
		return v.AddFounder(args.Key)
	})
}

func (p *Program) removeFounder(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args RemoveFounderArgs
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	return p.mutateVault(ic, accounts, byAdministrator, func(v *state.Vault) error {
		return v.RemoveFounder(args.Founder, args.NewFounderThreshold)
	})
}

func (p *Program) updateFounderThreshold(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args U16Arg
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	return p.mutateVault(ic, accounts, byAdministrator, func(v *state.Vault) error {
		return v.UpdateFounderThreshold(args.Value)
	})
}

func (p *Program) addMember(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args KeyArg
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	return p.mutateVault(ic, accounts, byFounder, func(v *state.Vault) error {
		return v.AddMember(args.Key)
	})
}

func (p *Program) removeMember(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args KeyArg
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	return p.mutateVault(ic, accounts, byFounder, func(v *state.Vault) error {
		return v.RemoveMember(args.Key)
	})
}
