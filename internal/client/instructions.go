package client

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/allowlist"
	"github.com/MBenz12/vault-x/internal/message"
	"github.com/MBenz12/vault-x/internal/pda"
	"github.com/MBenz12/vault-x/internal/program"
)

// Builder assembles vault program instructions. It derives every program
// address itself and never touches the network.
type Builder struct {
	resolver *pda.Resolver
}

func NewBuilder(programID ...solana.PublicKey) *Builder {
	return &Builder{resolver: pda.NewResolver(programID...)}
}

func (b *Builder) ProgramID() solana.PublicKey { return b.resolver.ProgramID() }

func (b *Builder) Resolver() *pda.Resolver { return b.resolver }

func (b *Builder) instruction(name string, args bin.BinaryMarshaler, accounts []*solana.AccountMeta) (solana.Instruction, error) {
	data, err := program.EncodeInstruction(name, args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return solana.NewInstruction(b.resolver.ProgramID(), accounts, data), nil
}

// optional fills an optional account slot. An omitted account is sent as
// the program ID.
func (b *Builder) optional(key *solana.PublicKey, writable, signer bool) *solana.AccountMeta {
	if key == nil {
		return solana.Meta(b.resolver.ProgramID())
	}
	return &solana.AccountMeta{PublicKey: *key, IsWritable: writable, IsSigner: signer}
}

func (b *Builder) config() (solana.PublicKey, error) {
	auth, err := b.resolver.VaultConfig()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return auth.Address, nil
}

// VaultConfigInit creates the config record. Only the program's initializer
// may sign it.
func (b *Builder) VaultConfigInit(initializer, authority, treasury solana.PublicKey, creationFee uint64) (solana.Instruction, error) {
	cfg, err := b.config()
	if err != nil {
		return nil, err
	}
	return b.instruction(program.NameVaultConfigInit, program.U64Arg{Value: creationFee}, []*solana.AccountMeta{
		{PublicKey: cfg, IsSigner: false, IsWritable: true},
		{PublicKey: initializer, IsSigner: true, IsWritable: true},
		{PublicKey: authority, IsSigner: false, IsWritable: false},
		{PublicKey: treasury, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	})
}

func (b *Builder) configUpdate(name string, authority solana.PublicKey, args bin.BinaryMarshaler) (solana.Instruction, error) {
	cfg, err := b.config()
	if err != nil {
		return nil, err
	}
	return b.instruction(name, args, []*solana.AccountMeta{
		{PublicKey: cfg, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: true},
	})
}

func (b *Builder) VaultConfigUpdateAuthority(authority, newAuthority solana.PublicKey) (solana.Instruction, error) {
	return b.configUpdate(program.NameVaultConfigUpdateAuthority, authority, program.KeyArg{Key: newAuthority})
}

func (b *Builder) VaultConfigUpdateCreationFee(authority solana.PublicKey, fee uint64) (solana.Instruction, error) {
	return b.configUpdate(program.NameVaultConfigUpdateCreationFee, authority, program.U64Arg{Value: fee})
}

func (b *Builder) VaultConfigUpdateTreasury(authority, newTreasury solana.PublicKey) (solana.Instruction, error) {
	return b.configUpdate(program.NameVaultConfigUpdateTreasury, authority, program.KeyArg{Key: newTreasury})
}

// CreateVaultParams describes a new vault. CreateKey must sign the
// transaction; it only seeds the vault address.
type CreateVaultParams struct {
	CreateKey     solana.PublicKey
	Administrator solana.PublicKey
	Treasury      solana.PublicKey
	AllowlistTree solana.PublicKey
	Threshold     uint16
	Founders      []solana.PublicKey
}

// CreateVault returns the instruction together with the vault address it creates.
func (b *Builder) CreateVault(p CreateVaultParams) (solana.Instruction, solana.PublicKey, error) {
	cfg, err := b.config()
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	vault, err := b.resolver.Vault(p.CreateKey)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	args := program.CreateVaultArgs{FounderThreshold: p.Threshold, InitialFounders: p.Founders}
	ix, err := b.instruction(program.NameCreateVault, args, []*solana.AccountMeta{
		{PublicKey: cfg, IsSigner: false, IsWritable: false},
		{PublicKey: p.Treasury, IsSigner: false, IsWritable: true},
		{PublicKey: p.AllowlistTree, IsSigner: false, IsWritable: false},
		{PublicKey: vault.Address, IsSigner: false, IsWritable: true},
		{PublicKey: p.CreateKey, IsSigner: true, IsWritable: false},
		{PublicKey: p.Administrator, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	})
	return ix, vault.Address, err
}

// AddFounder is signed by the administrator. rentPayer may be nil when the
// vault account already has room for one more founder.
func (b *Builder) AddFounder(vault, administrator, founder solana.PublicKey, rentPayer *solana.PublicKey) (solana.Instruction, error) {
	return b.rosterGrow(program.NameAddFounder, vault, administrator, founder, rentPayer)
}

// AddMember is signed by any founder.
func (b *Builder) AddMember(vault, founder, member solana.PublicKey, rentPayer *solana.PublicKey) (solana.Instruction, error) {
	return b.rosterGrow(program.NameAddMember, vault, founder, member, rentPayer)
}

func (b *Builder) rosterGrow(name string, vault, signer, key solana.PublicKey, rentPayer *solana.PublicKey) (solana.Instruction, error) {
	var systemProgram *solana.PublicKey
	if rentPayer != nil {
		systemProgram = &solana.SystemProgramID
	}
	return b.instruction(name, program.KeyArg{Key: key}, []*solana.AccountMeta{
		{PublicKey: vault, IsSigner: false, IsWritable: true},
		{PublicKey: signer, IsSigner: true, IsWritable: false},
		b.optional(rentPayer, true, true),
		b.optional(systemProgram, false, false),
	})
}

func (b *Builder) RemoveFounder(vault, administrator, founder solana.PublicKey, newThreshold *uint16) (solana.Instruction, error) {
	args := program.RemoveFounderArgs{Founder: founder, NewFounderThreshold: newThreshold}
	return b.instruction(program.NameRemoveFounder, args, []*solana.AccountMeta{
		{PublicKey: vault, IsSigner: false, IsWritable: true},
		{PublicKey: administrator, IsSigner: true, IsWritable: true},
	})
}

func (b *Builder) UpdateFounderThreshold(vault, administrator solana.PublicKey, threshold uint16) (solana.Instruction, error) {
	return b.instruction(program.NameUpdateFounderThreshold, program.U16Arg{Value: threshold}, []*solana.AccountMeta{
		{PublicKey: vault, IsSigner: false, IsWritable: true},
		{PublicKey: administrator, IsSigner: true, IsWritable: true},
	})
}

func (b *Builder) RemoveMember(vault, founder, member solana.PublicKey) (solana.Instruction, error) {
	return b.instruction(program.NameRemoveMember, program.KeyArg{Key: member}, []*solana.AccountMeta{
		{PublicKey: vault, IsSigner: false, IsWritable: true},
		{PublicKey: founder, IsSigner: true, IsWritable: true},
	})
}

// CreateFounderTransaction proposes msg as transaction index of vault. The
// index must be the vault's current transaction index plus one.
func (b *Builder) CreateFounderTransaction(vault, creator solana.PublicKey, index uint32, ephemeralSigners uint8, msg *message.TransactionMessage) (solana.Instruction, solana.PublicKey, error) {
	raw, err := message.Encode(msg)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	tx, err := b.resolver.FounderTransaction(vault, index)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	args := program.CreateFounderTransactionArgs{EphemeralSigners: ephemeralSigners, TransactionMessage: raw}
	ix, err := b.instruction(program.NameCreateFounderTransaction, args, []*solana.AccountMeta{
		{PublicKey: tx.Address, IsSigner: false, IsWritable: true},
		{PublicKey: vault, IsSigner: false, IsWritable: true},
		{PublicKey: creator, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	})
	return ix, tx.Address, err
}

func (b *Builder) vote(name string, vault, founder solana.PublicKey, index uint32) (solana.Instruction, error) {
	tx, err := b.resolver.FounderTransaction(vault, index)
	if err != nil {
		return nil, err
	}
	return b.instruction(name, nil, []*solana.AccountMeta{
		{PublicKey: tx.Address, IsSigner: false, IsWritable: true},
		{PublicKey: vault, IsSigner: false, IsWritable: false},
		{PublicKey: founder, IsSigner: true, IsWritable: true},
	})
}

func (b *Builder) ApproveFounderTransaction(vault, founder solana.PublicKey, index uint32) (solana.Instruction, error) {
	return b.vote(program.NameApproveFounderTransaction, vault, founder, index)
}

func (b *Builder) RejectFounderTransaction(vault, founder solana.PublicKey, index uint32) (solana.Instruction, error) {
	return b.vote(program.NameRejectFounderTransaction, vault, founder, index)
}

func (b *Builder) CancelFounderTransaction(vault, founder solana.PublicKey, index uint32) (solana.Instruction, error) {
	return b.vote(program.NameCancelFounderTransaction, vault, founder, index)
}

// ExecuteAccounts lists the trailing accounts an execute instruction must
// carry for msg: every message key in order, with signer flags cleared for
// the fund and the transaction's ephemeral signers.
func (b *Builder) ExecuteAccounts(vault, transaction solana.PublicKey, msg *message.TransactionMessage, ephemeralSigners uint8) ([]*solana.AccountMeta, error) {
	fund, err := b.resolver.Fund(vault)
	if err != nil {
		return nil, err
	}
	ephemerals, err := b.resolver.EphemeralSigners(transaction, ephemeralSigners)
	if err != nil {
		return nil, err
	}
	addrs := make([]solana.PublicKey, len(ephemerals))
	for i, e := range ephemerals {
		addrs[i] = e.Address
	}
	return msg.AccountMetas(fund.Address, addrs...), nil
}

func (b *Builder) execute(name string, vault, transaction, executor solana.PublicKey, msg *message.TransactionMessage, ephemeralSigners uint8) (solana.Instruction, error) {
	remaining, err := b.ExecuteAccounts(vault, transaction, msg, ephemeralSigners)
	if err != nil {
		return nil, err
	}
	accounts := append([]*solana.AccountMeta{
		{PublicKey: transaction, IsSigner: false, IsWritable: true},
		{PublicKey: vault, IsSigner: false, IsWritable: false},
		{PublicKey: executor, IsSigner: true, IsWritable: true},
	}, remaining...)
	return b.instruction(name, nil, accounts)
}

func (b *Builder) ExecuteFounderTransaction(vault, founder solana.PublicKey, index uint32, msg *message.TransactionMessage, ephemeralSigners uint8) (solana.Instruction, error) {
	tx, err := b.resolver.FounderTransaction(vault, index)
	if err != nil {
		return nil, err
	}
	return b.execute(program.NameExecuteFounderTransaction, vault, tx.Address, founder, msg, ephemeralSigners)
}

// MemberTransactionParams describes a member transaction and the allowlist
// proof that admits its creator.
type MemberTransactionParams struct {
	Vault            solana.PublicKey
	Creator          solana.PublicKey
	Index            uint32
	AllowlistTree    solana.PublicKey
	EphemeralSigners uint8
	Message          *message.TransactionMessage
	Root             allowlist.Node
	Leaf             allowlist.Node
	LeafIndex        uint32
	Proof            []allowlist.Node
}

func (b *Builder) CreateMemberTransaction(p MemberTransactionParams) (solana.Instruction, solana.PublicKey, error) {
	raw, err := message.Encode(p.Message)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	tx, err := b.resolver.MemberTransaction(p.Vault, p.Index)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	proof := make([][32]byte, len(p.Proof))
	for i, n := range p.Proof {
		proof[i] = n
	}
	args := program.CreateMemberTransactionArgs{
		EphemeralSigners:   p.EphemeralSigners,
		TransactionMessage: raw,
		AllowlistRoot:      p.Root,
		AllowlistLeaf:      p.Leaf,
		AllowlistLeafIndex: p.LeafIndex,
		AllowlistProof:     proof,
	}
	ix, err := b.instruction(program.NameCreateMemberTransaction, args, []*solana.AccountMeta{
		{PublicKey: tx.Address, IsSigner: false, IsWritable: true},
		{PublicKey: p.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: p.Creator, IsSigner: true, IsWritable: true},
		{PublicKey: p.AllowlistTree, IsSigner: false, IsWritable: false},
		{PublicKey: allowlist.ProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	})
	return ix, tx.Address, err
}

func (b *Builder) ExecuteMemberTransaction(vault, member solana.PublicKey, index uint32, msg *message.TransactionMessage, ephemeralSigners uint8) (solana.Instruction, error) {
	tx, err := b.resolver.MemberTransaction(vault, index)
	if err != nil {
		return nil, err
	}
	return b.execute(program.NameExecuteMemberTransaction, vault, tx.Address, member, msg, ephemeralSigners)
}
