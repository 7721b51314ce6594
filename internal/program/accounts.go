package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/pda"
	"github.com/MBenz12/vault-x/internal/state"
	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// loadOwned reads key and decodes it into v after checking that this
// program owns it.
func (p *Program) loadOwned(ic *ledger.InvokeContext, key solana.PublicKey, v state.Discriminated) (*ledger.Account, error) {
	acct, err := ic.Account(key)
	if err != nil {
		return nil, err
	}
	if !acct.Owner.Equals(p.ID()) {
		return nil, fmt.Errorf("%w: %s owned by %s", vaulterr.ErrInvalidProgram, key, acct.Owner)
	}
	if err := state.Unmarshal(acct.Data, v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", vaulterr.ErrInvalidAccount, key, err)
	}
	return acct, nil
}

func (p *Program) loadConfig(ic *ledger.InvokeContext, key solana.PublicKey) (*state.VaultConfig, error) {
	want, err := p.resolver.VaultConfig()
	if err != nil {
		return nil, err
	}
	if !key.Equals(want.Address) {
		return nil, fmt.Errorf("%w: config %s, expected %s", vaulterr.ErrInvalidAccount, key, want.Address)
	}
	cfg := new(state.VaultConfig)
	if _, err := p.loadOwned(ic, key, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadVault reads a vault and checks that key is the address its own
// create key and bump derive.
func (p *Program) loadVault(ic *ledger.InvokeContext, key solana.PublicKey) (*state.Vault, *ledger.Account, error) {
	v := new(state.Vault)
	acct, err := p.loadOwned(ic, key, v)
	if err != nil {
		return nil, nil, err
	}
	want, err := p.resolver.VaultWithBump(v.CreateKey, v.Bump)
	if err != nil {
		return nil, nil, err
	}
	if !want.Address.Equals(key) {
		return nil, nil, fmt.Errorf("%w: vault %s does not match its seeds", vaulterr.ErrInvalidAccount, key)
	}
	return v, acct, nil
}

func (p *Program) loadFounderTransaction(ic *ledger.InvokeContext, key, vault solana.PublicKey) (*state.FounderTransaction, error) {
	tx := new(state.FounderTransaction)
	if _, err := p.loadOwned(ic, key, tx); err != nil {
		return nil, err
	}
	if !tx.Vault.Equals(vault) {
		return nil, fmt.Errorf("%w: transaction belongs to %s", vaulterr.ErrInvalidInstructionAccount, tx.Vault)
	}
	want, err := p.resolver.FounderTransactionWithBump(vault, tx.TransactionIndex, tx.Bump)
	if err != nil {
		return nil, err
	}
	if !want.Address.Equals(key) {
		return nil, fmt.Errorf("%w: transaction %s does not match its seeds", vaulterr.ErrInvalidAccount, key)
	}
	return tx, nil
}

func (p *Program) loadMemberTransaction(ic *ledger.InvokeContext, key, vault solana.PublicKey) (*state.MemberTransaction, error) {
	tx := new(state.MemberTransaction)
	if _, err := p.loadOwned(ic, key, tx); err != nil {
		return nil, err
	}
	if !tx.Vault.Equals(vault) {
		return nil, fmt.Errorf("%w: transaction belongs to %s", vaulterr.ErrInvalidInstructionAccount, tx.Vault)
	}
	want, err := p.resolver.MemberTransactionWithBump(vault, tx.TransactionIndex, tx.Bump)
	if err != nil {
		return nil, err
	}
	if !want.Address.Equals(key) {
		return nil, fmt.Errorf("%w: transaction %s does not match its seeds", vaulterr.ErrInvalidAccount, key)
	}
	return tx, nil
}

func store(ic *ledger.InvokeContext, key solana.PublicKey, v state.Discriminated) error {
	data, err := state.Marshal(v)
	if err != nil {
		return err
	}
	return ic.SetData(key, data)
}

// initAccount creates the program-owned account at the derived address
// auth, funded by payer with the rent-exempt minimum for space bytes. An
// address that was pre-funded is topped up, allocated and assigned instead.
func (p *Program) initAccount(ic *ledger.InvokeContext, payer solana.PublicKey, auth pda.Authority, space int) error {
	acct, err := ic.Account(auth.Address)
	if err != nil {
		return err
	}
	if len(acct.Data) > 0 || !acct.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: %s", vaulterr.ErrAccountAlreadyInitialized, auth.Address)
	}

	seeds := [][][]byte{auth.SignerSeeds()}
	required := ic.Rent().MinimumBalance(space)

	if acct.Lamports == 0 {
		ix := system.NewCreateAccountInstruction(required, uint64(space), p.ID(), payer, auth.Address).Build()
		return mapLedgerError(ic.InvokeSigned(ix, seeds))
	}

	if acct.Lamports < required {
		ix := system.NewTransferInstruction(required-acct.Lamports, payer, auth.Address).Build()
		if err := ic.Invoke(ix); err != nil {
			return mapLedgerError(err)
		}
	}
	if err := ic.InvokeSigned(system.NewAllocateInstruction(uint64(space), auth.Address).Build(), seeds); err != nil {
		return mapLedgerError(err)
	}
	return mapLedgerError(ic.InvokeSigned(system.NewAssignInstruction(p.ID(), auth.Address).Build(), seeds))
}

// reallocIfNeeded grows key to required bytes and tops its balance up to the
// rent-exempt minimum from payer. It does nothing when the account is already
// large enough.
func reallocIfNeeded(ic *ledger.InvokeContext, key solana.PublicKey, required int, payer, systemProgram *solana.PublicKey) (bool, error) {
	acct, err := ic.Account(key)
	if err != nil {
		return false, err
	}
	if len(acct.Data) >= required {
		return false, nil
	}
	if payer == nil {
		return false, fmt.Errorf("%w: rent payer is required to grow %s", vaulterr.ErrMissingAccount, key)
	}
	if systemProgram == nil {
		return false, fmt.Errorf("%w: system program is required to grow %s", vaulterr.ErrMissingAccount, key)
	}
	if err := requireSystemProgram(*systemProgram); err != nil {
		return false, err
	}
	if err := requireSigner(ic, *payer, "rent payer"); err != nil {
		return false, err
	}

	requiredLamports := max(ic.Rent().MinimumBalance(required), 1)
	if acct.Lamports < requiredLamports {
		ix := system.NewTransferInstruction(requiredLamports-acct.Lamports, *payer, key).Build()
		if err := ic.Invoke(ix); err != nil {
			return false, mapLedgerError(err)
		}
	}
	if err := ic.Resize(key, required); err != nil {
		return false, err
	}
	return true, nil
}
