package message

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
)

// Compile turns ordinary instructions into a TransactionMessage, with payer
// (normally the vault fund) placed first as the writable signer. Ordering
// and deduplication of keys follow the ledger's own transaction compiler.
func Compile(payer solana.PublicKey, instructions ...solana.Instruction) (*TransactionMessage, error) {
	tx, err := solana.NewTransaction(instructions, solana.Hash{}, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to compile instructions: %w", err)
	}
	msg := tx.Message
	if len(msg.AccountKeys) > math.MaxUint8+1 {
		return nil, fmt.Errorf("too many accounts: %d", len(msg.AccountKeys))
	}

	header := msg.Header
	numKeys := len(msg.AccountKeys)
	out := &TransactionMessage{
		NumSigners:            header.NumRequiredSignatures,
		NumWritableSigners:    header.NumRequiredSignatures - header.NumReadonlySignedAccounts,
		NumWritableNonSigners: uint8(numKeys - int(header.NumRequiredSignatures) - int(header.NumReadonlyUnsignedAccounts)),
		AccountKeys:           append([]solana.PublicKey{}, msg.AccountKeys...),
		Instructions:          make([]Instruction, 0, len(msg.Instructions)),
	}
	for _, ci := range msg.Instructions {
		ix := Instruction{
			ProgramIDIndex: uint8(ci.ProgramIDIndex),
			AccountIndexes: make([]uint8, len(ci.Accounts)),
			Data:           append([]byte{}, ci.Data...),
		}
		for i, idx := range ci.Accounts {
			ix.AccountIndexes[i] = uint8(idx)
		}
		out.Instructions = append(out.Instructions, ix)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// AccountMetas lists every key of the message with the permissions its
// position implies. Signer flags are cleared for the program-signed
// authorities (the fund and the ephemeral signers) because no wallet signs
// for them.
func (m *TransactionMessage) AccountMetas(fund solana.PublicKey, ephemerals ...solana.PublicKey) []*solana.AccountMeta {
	metas := make([]*solana.AccountMeta, len(m.AccountKeys))
	for i, key := range m.AccountKeys {
		signer := m.IsSigner(i) && !key.Equals(fund) && !key.IsAnyOf(ephemerals...)
		metas[i] = solana.NewAccountMeta(key, m.IsWritable(i), signer)
	}
	return metas
}
