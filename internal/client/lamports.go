package client

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const solDecimals = 9

var lamportsPerSOL = decimal.NewFromUint64(solana.LAMPORTS_PER_SOL)

// LamportsToSOL converts a lamport amount to SOL without rounding.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-solDecimals)
}

// FormatSOL renders lamports as a SOL amount with trailing zeros trimmed.
func FormatSOL(lamports uint64) string {
	return LamportsToSOL(lamports).String() + " SOL"
}

// ParseSOL converts a decimal SOL amount such as "0.25" to lamports. More
// than nine fractional digits is an error rather than a silent truncation.
func ParseSOL(amount string) (uint64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid SOL amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid SOL amount %q: negative", amount)
	}
	lamports := d.Mul(lamportsPerSOL)
	if !lamports.IsInteger() {
		return 0, fmt.Errorf("invalid SOL amount %q: more than %d decimals", amount, solDecimals)
	}
	if lamports.GreaterThan(decimal.NewFromUint64(^uint64(0))) {
		return 0, fmt.Errorf("invalid SOL amount %q: too large", amount)
	}
	return lamports.BigInt().Uint64(), nil
}
