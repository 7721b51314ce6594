// Package program is the vault program: the instruction handlers that run
// inside the ledger and own every vault, config and transaction account.
package program

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/MBenz12/vault-x/internal/ledger"
	"github.com/MBenz12/vault-x/internal/metrics"
	"github.com/MBenz12/vault-x/internal/pda"
	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// DefaultInitializer is the only key allowed to create the config record.
var DefaultInitializer = solana.MustPublicKeyFromBase58("BrQAbGdWQ9YUHmWWgKFdFe4miTURH71jkYFPXfaosqDv")

type handler func(p *Program, ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error

// Program implements ledger.Program for the vault.
type Program struct {
	resolver    *pda.Resolver
	initializer solana.PublicKey
	metrics     *metrics.Metrics
	log         *zap.Logger
	handlers    map[InstructionDiscriminator]handler
}

var _ ledger.Program = (*Program)(nil)

type Option func(*Program)

func WithProgramID(id solana.PublicKey) Option {
	return func(p *Program) { p.resolver = pda.NewResolver(id) }
}

func WithInitializer(key solana.PublicKey) Option {
	return func(p *Program) { p.initializer = key }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Program) { p.metrics = m }
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Program) { p.log = log }
}

func New(opts ...Option) *Program {
	p := &Program{
		resolver:    pda.NewResolver(),
		initializer: DefaultInitializer,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.handlers = map[InstructionDiscriminator]handler{
		Discriminator(NameVaultConfigInit):              (*Program).vaultConfigInit,
		Discriminator(NameVaultConfigUpdateAuthority):   (*Program).vaultConfigUpdateAuthority,
		Discriminator(NameVaultConfigUpdateCreationFee): (*Program).vaultConfigUpdateCreationFee,
		Discriminator(NameVaultConfigUpdateTreasury):    (*Program).vaultConfigUpdateTreasury,
		Discriminator(NameCreateVault):                  (*Program).createVault,
		Discriminator(NameAddMember):                    (*Program).addMember,
		Discriminator(NameRemoveMember):                 (*Program).removeMember,
		Discriminator(NameAddFounder):                   (*Program).addFounder,
		Discriminator(NameRemoveFounder):                (*Program).removeFounder,
		Discriminator(NameUpdateFounderThreshold):       (*Program).updateFounderThreshold,
		Discriminator(NameCreateFounderTransaction):     (*Program).createFounderTransaction,
		Discriminator(NameApproveFounderTransaction):    (*Program).approveFounderTransaction,
		Discriminator(NameRejectFounderTransaction):     (*Program).rejectFounderTransaction,
		Discriminator(NameCancelFounderTransaction):     (*Program).cancelFounderTransaction,
		Discriminator(NameExecuteFounderTransaction):    (*Program).executeFounderTransaction,
		Discriminator(NameCreateMemberTransaction):      (*Program).createMemberTransaction,
		Discriminator(NameExecuteMemberTransaction):     (*Program).executeMemberTransaction,
	}
	return p
}

func (p *Program) ID() solana.PublicKey { return p.resolver.ProgramID() }

func (p *Program) Resolver() *pda.Resolver { return p.resolver }

// Process dispatches on the 8-byte instruction discriminator.
func (p *Program) Process(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	name, ok := InstructionName(data)
	if !ok {
		return fmt.Errorf("%w: unknown instruction", vaulterr.ErrInvalidInstructionData)
	}
	h := p.handlers[Discriminator(name)]
	ic.Log("Instruction: %s", name)

	err := h(p, ic, accounts, data[8:])
	p.metrics.ObserveInstruction(name, err)
	if err != nil {
		p.log.Debug("instruction failed", zap.String("instruction", name), zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// accountList gives positional access to an instruction's accounts.
type accountList []*solana.AccountMeta

func (a accountList) key(i int, name string) (solana.PublicKey, error) {
	if i >= len(a) {
		return solana.PublicKey{}, fmt.Errorf("%w: %s", vaulterr.ErrMissingAccount, name)
	}
	return a[i].PublicKey, nil
}

// optional returns nil for an absent optional account. Clients mark an
// omitted optional account by passing the program ID in its slot.
func (a accountList) optional(i int, programID solana.PublicKey) *solana.PublicKey {
	if i >= len(a) || a[i].PublicKey.Equals(programID) {
		return nil
	}
	k := a[i].PublicKey
	return &k
}

// remaining returns the accounts after the fixed ones.
func (a accountList) remaining(from int) []*solana.AccountMeta {
	if from >= len(a) {
		return nil
	}
	return a[from:]
}

func requireSigner(ic *ledger.InvokeContext, key solana.PublicKey, name string) error {
	if !ic.IsSigner(key) {
		return fmt.Errorf("%w: %s %s must sign", vaulterr.ErrUnauthorized, name, key)
	}
	return nil
}

func requireSystemProgram(key solana.PublicKey) error {
	if !key.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: expected system program, got %s", vaulterr.ErrInvalidProgram, key)
	}
	return nil
}

// mapLedgerError turns runtime failures a caller can fix into program errors.
func mapLedgerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrInsufficientLamports), errors.Is(err, ledger.ErrLamportOverflow):
		return fmt.Errorf("%w: %w", vaulterr.ErrInsufficientFunds, err)
	case errors.Is(err, ledger.ErrAccountInUse):
		return fmt.Errorf("%w: %w", vaulterr.ErrAccountAlreadyInitialized, err)
	default:
		return err
	}
}
