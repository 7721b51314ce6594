package execution

import (
	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/pda"
)

// AuthorityToken is the capability to co-sign as a set of derived addresses.
// It carries derivation paths only; there is no private key behind any of them.
type AuthorityToken struct {
	authorities []pda.Authority
}

// NewAuthorityToken covers the ephemeral signers followed by the fund.
func NewAuthorityToken(fund pda.Authority, ephemerals ...pda.Authority) *AuthorityToken {
	all := make([]pda.Authority, 0, len(ephemerals)+1)
	all = append(all, ephemerals...)
	all = append(all, fund)
	return &AuthorityToken{authorities: all}
}

// SignerSeeds returns one seed path (bump included) per covered address.
func (t *AuthorityToken) SignerSeeds() [][][]byte {
	out := make([][][]byte, len(t.authorities))
	for i, a := range t.authorities {
		out[i] = a.SignerSeeds()
	}
	return out
}

func (t *AuthorityToken) Addresses() []solana.PublicKey {
	out := make([]solana.PublicKey, len(t.authorities))
	for i, a := range t.authorities {
		out[i] = a.Address
	}
	return out
}

func (t *AuthorityToken) Covers(key solana.PublicKey) bool {
	return key.IsAnyOf(t.Addresses()...)
}

// SubOperation is one instruction of a batch, resolved against the runtime
// accounts. It satisfies solana.Instruction.
type SubOperation struct {
	program  solana.PublicKey
	metas    []*solana.AccountMeta
	data     []byte
	accounts []*solana.AccountMeta
}

var _ solana.Instruction = (*SubOperation)(nil)

func (op *SubOperation) ProgramID() solana.PublicKey { return op.program }

// Accounts returns the permission list the callee sees, with flags taken
// from the message positions.
func (op *SubOperation) Accounts() []*solana.AccountMeta { return op.metas }

func (op *SubOperation) Data() ([]byte, error) { return op.data, nil }

// AccountInfos returns the runtime accounts handed to the callee: one per
// meta, followed by the program account.
func (op *SubOperation) AccountInfos() []*solana.AccountMeta { return op.accounts }
