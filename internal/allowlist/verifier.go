package allowlist

import (
	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/ledger"
)

// Verifier checks a membership proof against an allowlist tree account.
type Verifier interface {
	VerifyLeaf(tree solana.PublicKey, args VerifyLeafArgs) error
}

// NewInvokeVerifier verifies by calling verify_leaf on the allowlist program
// from inside a running instruction. The tree and the allowlist program
// must both have been passed to that instruction.
func NewInvokeVerifier(ic *ledger.InvokeContext) Verifier {
	return invokeVerifier{ic: ic}
}

type invokeVerifier struct {
	ic *ledger.InvokeContext
}

func (v invokeVerifier) VerifyLeaf(tree solana.PublicKey, args VerifyLeafArgs) error {
	ix, err := NewVerifyLeafInstruction(tree, args)
	if err != nil {
		return err
	}
	return v.ic.Invoke(ix)
}
