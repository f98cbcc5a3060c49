// Package types provides the value types shared across the market: token
// amounts, fixed-point prices and rates, and entity timestamps.
package types

import (
	"encoding/json"
	"fmt"
)

// Symbol names a fungible token tracked by the market.
type Symbol string

// Tokens handled by the market.
const (
	// DMC is the deposit token used for payments, pledges and collateral.
	DMC Symbol = "DMC"
	// PST is the capacity token minted against collateral and sold in bills.
	PST Symbol = "PST"
	// RSI is the reward token issued by incentive accrual and order claims.
	RSI Symbol = "RSI"
)

// Precision returns the number of decimal places of the symbol's base unit.
func (s Symbol) Precision() int {
	switch s {
	case DMC:
		return 4
	case RSI:
		return 8
	default:
		return 0
	}
}

// Unit returns the number of base units in one whole token.
func (s Symbol) Unit() int64 {
	u := int64(1)
	for i := 0; i < s.Precision(); i++ {
		u *= 10
	}
	return u
}

// Valid reports whether s is one of the market tokens.
func (s Symbol) Valid() bool {
	return s == DMC || s == PST || s == RSI
}

// Asset is an amount of a token in base units.
// All arithmetic is integer-only; no floating point.
//
// Examples:
//   - NewDMC(200000) = 20.0000 DMC
//   - NewPST(40)     = 40 PST
//   - NewRSI(1)      = 0.00000001 RSI
type Asset struct {
	Amount int64  `json:"amount"` // base units
	Symbol Symbol `json:"symbol"`
}

// NewDMC creates a deposit-token asset in base units (1e-4 DMC).
func NewDMC(units int64) Asset { return Asset{Amount: units, Symbol: DMC} }

// NewPST creates a capacity-token asset (whole units).
func NewPST(units int64) Asset { return Asset{Amount: units, Symbol: PST} }

// NewRSI creates a reward-token asset in base units (1e-8 RSI).
func NewRSI(units int64) Asset { return Asset{Amount: units, Symbol: RSI} }

// Zero returns a zero asset of the given symbol.
func Zero(s Symbol) Asset { return Asset{Symbol: s} }

// Add adds two assets. Panics if symbols don't match.
func (a Asset) Add(other Asset) Asset {
	a.assertSameSymbol(other)
	return Asset{Amount: a.Amount + other.Amount, Symbol: a.Symbol}
}

// Subtract subtracts another asset. Panics if symbols don't match.
func (a Asset) Subtract(other Asset) Asset {
	a.assertSameSymbol(other)
	return Asset{Amount: a.Amount - other.Amount, Symbol: a.Symbol}
}

// IsZero returns true if the amount is zero.
func (a Asset) IsZero() bool { return a.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Asset) IsPositive() bool { return a.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (a Asset) IsNegative() bool { return a.Amount < 0 }

// Equal returns true if both assets have the same amount and symbol.
func (a Asset) Equal(other Asset) bool {
	return a.Amount == other.Amount && a.Symbol == other.Symbol
}

// LessThan returns true if a is less than other. Panics if symbols don't match.
func (a Asset) LessThan(other Asset) bool {
	a.assertSameSymbol(other)
	return a.Amount < other.Amount
}

// FormatMajor returns the amount in whole tokens without the symbol,
// e.g. "20.0000" for NewDMC(200000).
func (a Asset) FormatMajor() string {
	decimals := a.Symbol.Precision()
	if decimals == 0 {
		return fmt.Sprintf("%d", a.Amount)
	}

	unit := a.Symbol.Unit()
	isNegative := a.Amount < 0
	abs := a.Amount
	if isNegative {
		abs = -abs
	}

	result := fmt.Sprintf("%d.%0*d", abs/unit, decimals, abs%unit)
	if isNegative {
		return "-" + result
	}
	return result
}

// String returns a human-readable form such as "20.0000 DMC".
func (a Asset) String() string {
	return a.FormatMajor() + " " + string(a.Symbol)
}

// MarshalJSON implements json.Marshaler.
func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount  int64  `json:"amount"`
		Symbol  Symbol `json:"symbol"`
		Display string `json:"display"`
	}{
		Amount:  a.Amount,
		Symbol:  a.Symbol,
		Display: a.String(),
	})
}

// assertSameSymbol panics if symbols don't match.
func (a Asset) assertSameSymbol(other Asset) {
	if a.Symbol != other.Symbol {
		panic(fmt.Sprintf("asset: symbol mismatch: %s != %s", a.Symbol, other.Symbol))
	}
}
