// Package types provides value types shared across sigil.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// CurrencySOL is the currency code of SOL amounts.
const CurrencySOL = "sol"

// Money is a payment amount in the smallest unit of its currency
// (lamports for SOL, micro-units for USDC).
// Arithmetic is integer-only; conversion to a major-unit float happens
// only at the tier validation boundary.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"` // lowercase: "sol", "usdc"
}

// SOL creates a Money value from lamports.
func SOL(lamports int64) Money { return Money{Amount: lamports, Currency: CurrencySOL} }

// Lamports is an alias of SOL that reads better at call sites holding raw lamports.
func Lamports(n int64) Money { return SOL(n) }

// FromMajor converts a major-unit amount (e.g. 0.07 SOL) to Money, rounding
// to the nearest minor unit. NaN, infinities and values that overflow int64
// are rejected.
func FromMajor(major float64, currency string) (Money, error) {
	if math.IsNaN(major) || math.IsInf(major, 0) {
		return Money{}, fmt.Errorf("money: non-finite amount %v", major)
	}
	currency = strings.ToLower(currency)
	minor := math.Round(major * math.Pow10(currencyDecimals(currency)))
	if minor >= math.MaxInt64 || minor <= math.MinInt64 {
		return Money{}, fmt.Errorf("money: amount %v %s overflows", major, currency)
	}
	return Money{Amount: int64(minor), Currency: currency}, nil
}

// Major returns the amount in major units (SOL, USDC).
func (m Money) Major() float64 {
	return float64(m.Amount) / math.Pow10(currencyDecimals(m.Currency))
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// FormatMajor returns the major unit string without currency code,
// e.g. "0.070000000" for SOL(70_000_000).
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)

	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	isNegative := m.Amount < 0
	absAmount := m.Amount
	if isNegative {
		absAmount = -absAmount
	}

	format := fmt.Sprintf("%%d.%%0%dd", decimals)
	result := fmt.Sprintf(format, absAmount/divisor, absAmount%divisor)

	if isNegative {
		return "-" + result
	}
	return result
}

// String returns a human-readable string such as "0.070000000 SOL".
func (m Money) String() string {
	return m.FormatMajor() + " " + strings.ToUpper(m.Currency)
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// currencyDecimals returns the number of decimal places for a currency.
func currencyDecimals(currency string) int {
	switch strings.ToLower(currency) {
	case CurrencySOL:
		return 9
	case "usdc", "usdt":
		return 6
	default:
		return 2
	}
}
