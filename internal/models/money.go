package models

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point amount stored and rendered with two decimal places.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d.Round(2)}
}

func MustMoney(s string) Money {
	return NewMoney(decimal.RequireFromString(s))
}

// Times multiplies by an integer quantity. The result is exact.
func (m Money) Times(quantity int) Money {
	return Money{Decimal: m.Decimal.Mul(decimal.NewFromInt(int64(quantity)))}
}

func (m Money) Equal(other Money) bool {
	return m.Decimal.Equal(other.Decimal)
}

func (m Money) String() string {
	return m.StringFixed(2)
}

// MarshalJSON renders a JSON number such as 100.00.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.StringFixed(2)), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	return m.Decimal.UnmarshalJSON(b)
}

func (m *Money) Scan(value interface{}) error {
	return m.Decimal.Scan(value)
}

func (m Money) Value() (driver.Value, error) {
	return m.StringFixed(2), nil
}
