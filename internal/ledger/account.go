package ledger

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// AccountStorageOverhead is charged on top of the data length when computing
// the rent-exempt minimum.
const AccountStorageOverhead = 128

// Account is the ledger's view of one address.
type Account struct {
	Lamports   uint64
	Owner      solana.PublicKey
	Data       []byte
	Executable bool
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// Empty reports whether the account holds nothing and would be purged on commit.
func (a *Account) Empty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// newSystemAccount is what an address that was never written looks like.
func newSystemAccount() *Account {
	return &Account{Owner: solana.SystemProgramID}
}

type KeyedAccount struct {
	PublicKey solana.PublicKey
	Account   *Account
}

// Rent holds the parameters for the rent-exempt minimum balance.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64
}

var DefaultRent = Rent{LamportsPerByteYear: 3480, ExemptionThreshold: 2}

// MinimumBalance is the lamports an account of size bytes needs to be rent exempt.
func (r Rent) MinimumBalance(size int) uint64 {
	return (AccountStorageOverhead + uint64(size)) * r.LamportsPerByteYear * r.ExemptionThreshold
}

// IsExempt reports whether lamports cover an account of size bytes.
func (r Rent) IsExempt(lamports uint64, size int) bool {
	return lamports >= r.MinimumBalance(size)
}

// Receipt records the outcome of one processed transaction.
type Receipt struct {
	Signature string
	Slot      uint64
	Err       string
	Logs      []string
	Time      time.Time
}

func (r *Receipt) Succeeded() bool { return r.Err == "" }
