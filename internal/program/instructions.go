package program

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// Instruction names, also used as metric labels.
const (
	NameVaultConfigInit              = "vault_config_init"
	NameVaultConfigUpdateAuthority   = "vault_config_update_authority"
	NameVaultConfigUpdateCreationFee = "vault_config_update_creation_fee"
	NameVaultConfigUpdateTreasury    = "vault_config_update_treasury"
	NameCreateVault                  = "create_vault"
	NameAddMember                    = "add_member"
	NameRemoveMember                 = "remove_member"
	NameAddFounder                   = "add_founder"
	NameRemoveFounder                = "remove_founder"
	NameUpdateFounderThreshold       = "update_founder_threshold"
	NameCreateFounderTransaction     = "create_founder_transaction"
	NameApproveFounderTransaction    = "approve_founder_transaction"
	NameRejectFounderTransaction     = "reject_founder_transaction"
	NameCancelFounderTransaction     = "cancel_founder_transaction"
	NameExecuteFounderTransaction    = "execute_founder_transaction"
	NameCreateMemberTransaction      = "create_member_transaction"
	NameExecuteMemberTransaction     = "execute_member_transaction"
)

// InstructionDiscriminator is the 8-byte prefix of instruction data.
type InstructionDiscriminator [8]byte

// Discriminator returns sha256("global:<name>")[:8].
func Discriminator(name string) InstructionDiscriminator {
	h := sha256.Sum256([]byte("global:" + name))
	var d InstructionDiscriminator
	copy(d[:], h[:8])
	return d
}

var instructionNames = func() map[InstructionDiscriminator]string {
	out := make(map[InstructionDiscriminator]string)
	for _, name := range []string{
		NameVaultConfigInit, NameVaultConfigUpdateAuthority, NameVaultConfigUpdateCreationFee, NameVaultConfigUpdateTreasury,
		NameCreateVault, NameAddMember, NameRemoveMember, NameAddFounder, NameRemoveFounder, NameUpdateFounderThreshold,
		NameCreateFounderTransaction, NameApproveFounderTransaction, NameRejectFounderTransaction,
		NameCancelFounderTransaction, NameExecuteFounderTransaction,
		NameCreateMemberTransaction, NameExecuteMemberTransaction,
	} {
		out[Discriminator(name)] = name
	}
	return out
}()

// InstructionName names the instruction data belongs to.
func InstructionName(data []byte) (string, bool) {
	if len(data) < 8 {
		return "", false
	}
	var d InstructionDiscriminator
	copy(d[:], data[:8])
	name, ok := instructionNames[d]
	return name, ok
}

// EncodeInstruction prefixes the Borsh encoding of args with name's
// discriminator. args may be nil for instructions without arguments.
func EncodeInstruction(name string, args bin.BinaryMarshaler) ([]byte, error) {
	buf := new(bytes.Buffer)
	d := Discriminator(name)
	buf.Write(d[:])
	if args != nil {
		if err := args.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
			return nil, fmt.Errorf("failed to encode %s args: %w", name, err)
		}
	}
	return buf.Bytes(), nil
}

func decodeArgs(data []byte, args bin.BinaryUnmarshaler) error {
	if err := args.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return fmt.Errorf("%w: %v", vaulterr.ErrInvalidInstructionData, err)
	}
	return nil
}

type U64Arg struct{ Value uint64 }

func (a U64Arg) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint64(a.Value, bin.LE)
}

func (a *U64Arg) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	a.Value, err = dec.ReadUint64(bin.LE)
	return err
}

type KeyArg struct{ Key solana.PublicKey }

func (a KeyArg) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteBytes(a.Key[:], false)
}

func (a *KeyArg) UnmarshalWithDecoder(dec *bin.Decoder) error {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	a.Key = solana.PublicKeyFromBytes(raw)
	return nil
}

type CreateVaultArgs struct {
	FounderThreshold uint16
	InitialFounders  []solana.PublicKey
}

func (a CreateVaultArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint16(a.FounderThreshold, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteLength(len(a.InitialFounders)); err != nil {
		return err
	}
	for _, k := range a.InitialFounders {
		if err := enc.WriteBytes(k[:], false); err != nil {
			return err
		}
	}
	return nil
}

func (a *CreateVaultArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.FounderThreshold, err = dec.ReadUint16(bin.LE); err != nil {
		return err
	}
	n, err := dec.ReadLength()
	if err != nil {
		return err
	}
	if n*solana.PublicKeyLength > dec.Remaining() {
		return fmt.Errorf("%d founders exceed remaining %d bytes", n, dec.Remaining())
	}
	a.InitialFounders = make([]solana.PublicKey, n)
	for i := range a.InitialFounders {
		raw, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return err
		}
		a.InitialFounders[i] = solana.PublicKeyFromBytes(raw)
	}
	return nil
}

type RemoveFounderArgs struct {
	Founder             solana.PublicKey
	NewFounderThreshold *uint16
}

func (a RemoveFounderArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(a.Founder[:], false); err != nil {
		return err
	}
	if a.NewFounderThreshold == nil {
		return enc.WriteBool(false)
	}
	if err := enc.WriteBool(true); err != nil {
		return err
	}
	return enc.WriteUint16(*a.NewFounderThreshold, bin.LE)
}

func (a *RemoveFounderArgs) UnmarshalWithDecoder(dec *bin.Decoder) error {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	a.Founder = solana.PublicKeyFromBytes(raw)
	some, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	switch some {
	case 0:
		a.NewFounderThreshold = nil
	case 1:
		t, err := dec.ReadUint16(bin.LE)
		if err != nil {
			return err
		}
		a.NewFounderThreshold = &t
	default:
		return fmt.Errorf("invalid option tag %d", some)
	}
	return nil
}

type U16Arg struct{ Value uint16 }

func (a U16Arg) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint16(a.Value, bin.LE)
}

func (a *U16Arg) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	a.Value, err = dec.ReadUint16(bin.LE)
	return err
}

type CreateFounderTransactionArgs struct {
	EphemeralSigners   uint8
	TransactionMessage []byte
}

func (a CreateFounderTransactionArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint8(a.EphemeralSigners); err != nil {
		return err
	}
	return enc.WriteBytes(a.TransactionMessage, true)
}

func (a *CreateFounderTransactionArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.EphemeralSigners, err = dec.ReadUint8(); err != nil {
		return err
	}
	raw, err := dec.ReadByteSlice()
	if err != nil {
		return err
	}
	a.TransactionMessage = append([]byte(nil), raw...)
	return nil
}

// CreateMemberTransactionArgs carries the batch plus the allowlist proof
// that admits its creator. The proof is passed inline, bottom up.
type CreateMemberTransactionArgs struct {
	EphemeralSigners   uint8
	TransactionMessage []byte
	AllowlistRoot      [32]byte
	AllowlistLeaf      [32]byte
	AllowlistLeafIndex uint32
	AllowlistProof     [][32]byte
}

func (a CreateMemberTransactionArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint8(a.EphemeralSigners); err != nil {
		return err
	}
	if err := enc.WriteBytes(a.TransactionMessage, true); err != nil {
		return err
	}
	if err := enc.WriteBytes(a.AllowlistRoot[:], false); err != nil {
		return err
	}
	if err := enc.WriteBytes(a.AllowlistLeaf[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint32(a.AllowlistLeafIndex, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteLength(len(a.AllowlistProof)); err != nil {
		return err
	}
	for _, n := range a.AllowlistProof {
		if err := enc.WriteBytes(n[:], false); err != nil {
			return err
		}
	}
	return nil
}

func (a *CreateMemberTransactionArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.EphemeralSigners, err = dec.ReadUint8(); err != nil {
		return err
	}
	raw, err := dec.ReadByteSlice()
	if err != nil {
		return err
	}
	a.TransactionMessage = append([]byte(nil), raw...)
	for _, dst := range []*[32]byte{&a.AllowlistRoot, &a.AllowlistLeaf} {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return err
		}
		copy(dst[:], raw)
	}
	if a.AllowlistLeafIndex, err = dec.ReadUint32(bin.LE); err != nil {
		return err
	}
	n, err := dec.ReadLength()
	if err != nil {
		return err
	}
	if n*32 > dec.Remaining() {
		return fmt.Errorf("proof of %d nodes exceeds remaining %d bytes", n, dec.Remaining())
	}
	a.AllowlistProof = make([][32]byte, n)
	for i := range a.AllowlistProof {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return err
		}
		copy(a.AllowlistProof[i][:], raw)
	}
	return nil
}
