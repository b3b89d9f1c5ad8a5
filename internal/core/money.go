// Package core provides money parsing and handling utilities.
//
// Amounts are carried as int64 cents. Decimal strings coming from outside
// are parsed with shopspring/decimal and must be exact to the cent: anything
// that does not parse is a ValidationError, never a silent zero.
package core

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a fixed-precision amount in cents. It may be negative when it
// holds a derived value such as a balance or a pool total.
type Money struct {
	Cents int64
}

// Cents is shorthand for Money{Cents: c}.
func Cents(c int64) Money { return Money{Cents: c} }

func (m Money) Add(n Money) Money { return Money{Cents: m.Cents + n.Cents} }
func (m Money) Sub(n Money) Money { return Money{Cents: m.Cents - n.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }
func (m Money) IsZero() bool      { return m.Cents == 0 }
func (m Money) IsNegative() bool  { return m.Cents < 0 }
func (m Money) IsPositive() bool  { return m.Cents > 0 }

// Abs returns the magnitude of m.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return m.Neg()
	}
	return m
}

// Validate checks that m can be used as a transaction amount.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return NewValidationError("amount", "must be greater than zero")
	}
	return nil
}

// Decimal returns m as a decimal in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats m with exactly two fractional digits, e.g. "-150.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts "12.34" or 12.34. Signed values are accepted here;
// operations that need a positive amount check it themselves.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return NewValidationError("amount", "must not be null")
	}
	var s string
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return NewValidationError("amount", "malformed string")
		}
	} else {
		s = raw
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMoney converts a signed decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Values
// with sub-cent precision are rejected rather than rounded.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234
//	ParseMoney("12,30")  -> 1230
//	ParseMoney("-5")     -> -500
//	ParseMoney("12.345") -> error
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, NewValidationError("amount", "empty value")
	}
	if strings.Count(s, ",") > 0 && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	if strings.ContainsAny(s, "eE") {
		return Money{}, NewValidationError("amount", "exponent notation not allowed: "+s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, NewValidationError("amount", "not a decimal number: "+s)
	}
	shifted := d.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return Money{}, NewValidationError("amount", "more than two fractional digits: "+s)
	}
	if !shifted.BigInt().IsInt64() {
		return Money{}, NewValidationError("amount", "out of range: "+s)
	}
	return Money{Cents: shifted.IntPart()}, nil
}

// ParseDecimalToCents parses a strictly positive amount, as used for
// transaction amounts coming from collaborators.
func ParseDecimalToCents(s string) (int64, error) {
	m, err := ParseMoney(s)
	if err != nil {
		return 0, err
	}
	if err := m.Validate(); err != nil {
		return 0, err
	}
	return m.Cents, nil
}
