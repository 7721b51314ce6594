package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/state"
	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// Accounts: vault_config (w), initializer (ws), authority, treasury, system_program.
func (p *Program) vaultConfigInit(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args U64Arg
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	list := accountList(accounts)
	keys := make([]solana.PublicKey, 5)
	for i, name := range []string{"vault_config", "initializer", "authority", "treasury", "system_program"} {
		k, err := list.key(i, name)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	configKey, initializer, authority, treasury, systemProgram := keys[0], keys[1], keys[2], keys[3], keys[4]

	if !initializer.Equals(p.initializer) {
		return fmt.Errorf("%w: %s is not the initializer", vaulterr.ErrUnauthorized, initializer)
	}
	if err := requireSigner(ic, initializer, "initializer"); err != nil {
		return err
	}
	if err := requireSystemProgram(systemProgram); err != nil {
		return err
	}

	cfgAuth, err := p.resolver.VaultConfig()
	if err != nil {
		return err
	}
	if !configKey.Equals(cfgAuth.Address) {
		return fmt.Errorf("%w: config %s, expected %s", vaulterr.ErrInvalidAccount, configKey, cfgAuth.Address)
	}

	cfg := &state.VaultConfig{Bump: cfgAuth.Bump, CreationFee: args.Value}
	if err := cfg.SetAuthority(authority); err != nil {
		return err
	}
	if err := cfg.SetTreasury(treasury); err != nil {
		return err
	}
	if err := p.initAccount(ic, initializer, cfgAuth, state.VaultConfigSize); err != nil {
		return err
	}
	if err := store(ic, configKey, cfg); err != nil {
		return err
	}
	p.log.Info("vault config initialized",
		zap.Stringer("authority", authority),
		zap.Stringer("treasury", treasury),
		zap.Uint64("creation_fee", args.Value),
	)
	return nil
}

// configUpdate loads the config for an update signed by its authority.
// Accounts: vault_config (w), authority (ws).
func (p *Program) configUpdate(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, update func(*state.VaultConfig) error) error {
	list := accountList(accounts)
	configKey, err := list.key(0, "vault_config")
	if err != nil {
		return err
	}
	authority, err := list.key(1, "authority")
	if err != nil {
		return err
	}
	cfg, err := p.loadConfig(ic, configKey)
	if err != nil {
		return err
	}
	if !authority.Equals(cfg.Authority) {
		return fmt.Errorf("%w: %s is not the config authority", vaulterr.ErrUnauthorized, authority)
	}
	if err := requireSigner(ic, authority, "authority"); err != nil {
		return err
	}
	if err := update(cfg); err != nil {
		return err
	}
	return store(ic, configKey, cfg)
}

func (p *Program) vaultConfigUpdateAuthority(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args KeyArg
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	return p.configUpdate(ic, accounts, func(cfg *state.VaultConfig) error {
		return cfg.SetAuthority(args.Key)
	})
}

func (p *Program) vaultConfigUpdateCreationFee(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args U64Arg
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	return p.configUpdate(ic, accounts, func(cfg *state.VaultConfig) error {
		cfg.CreationFee = args.Value
		return nil
	})
}

func (p *Program) vaultConfigUpdateTreasury(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	var args KeyArg
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	return p.configUpdate(ic, accounts, func(cfg *state.VaultConfig) error {
		return cfg.SetTreasury(args.Key)
	})
}
