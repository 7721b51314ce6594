package program

import (
	"context"

	"github.com/MBenz12/vault-x/internal/execution"
	"github.com/MBenz12/vault-x/internal/ledger"
)

// cpiInvoker runs sub-operations as cross-program calls from the vault
// program, signing with the seeds the token carries.
type cpiInvoker struct {
	ic *ledger.InvokeContext
}

var _ execution.Invoker = cpiInvoker{}

func (c cpiInvoker) Invoke(_ context.Context, op *execution.SubOperation, token *execution.AuthorityToken) error {
	return c.ic.InvokeSignedWith(op, op.AccountInfos(), token.SignerSeeds())
}

func (p *Program) engine(ic *ledger.InvokeContext) *execution.Engine {
	return execution.NewEngine(cpiInvoker{ic: ic}, execution.WithLogger(p.log))
}
