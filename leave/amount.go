package leave

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Leave quantity in days, half-day granularity supported
// =============================================================================

// Days is a quantity of leave days. It wraps decimal.Decimal so that
// half-day units and monthly accrual fractions never accumulate float error.
type Days struct {
	d decimal.Decimal
}

func DaysOf(v float64) Days          { return Days{d: decimal.NewFromFloat(v)} }
func DaysFromInt(n int) Days         { return Days{d: decimal.NewFromInt(int64(n))} }
func ZeroDays() Days                 { return Days{} }

func ParseDays(s string) (Days, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Days{}, err
	}
	return Days{d: d}, nil
}

// MustParseDays is for constants and test fixtures; invalid input yields zero.
func MustParseDays(s string) Days {
	d, err := ParseDays(s)
	if err != nil {
		return Days{}
	}
	return d
}

func (a Days) Add(b Days) Days        { return Days{d: a.d.Add(b.d)} }
func (a Days) Sub(b Days) Days        { return Days{d: a.d.Sub(b.d)} }
func (a Days) Neg() Days              { return Days{d: a.d.Neg()} }
func (a Days) IsZero() bool           { return a.d.IsZero() }
func (a Days) IsNegative() bool       { return a.d.IsNegative() }
func (a Days) IsPositive() bool       { return a.d.IsPositive() }
func (a Days) Equal(b Days) bool      { return a.d.Equal(b.d) }
func (a Days) GreaterThan(b Days) bool { return a.d.GreaterThan(b.d) }
func (a Days) LessThan(b Days) bool   { return a.d.LessThan(b.d) }

func (a Days) Min(b Days) Days {
	if a.LessThan(b) {
		return a
	}
	return b
}

// DivInt divides by an integer (used for annual-days / 12).
func (a Days) DivInt(n int) Days { return Days{d: a.d.Div(decimal.NewFromInt(int64(n)))} }

// MulInt multiplies by an integer (completed months of accrual).
func (a Days) MulInt(n int) Days { return Days{d: a.d.Mul(decimal.NewFromInt(int64(n)))} }

// FloorToHalf floors the quantity to the policy's half-day granularity:
// 1.67 -> 1.5, 3.9 -> 3.5, 4.0 -> 4.0.
func (a Days) FloorToHalf() Days {
	two := decimal.NewFromInt(2)
	return Days{d: a.d.Mul(two).Floor().Div(two)}
}

func (a Days) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

// String renders the exact decimal value; used for persistence.
func (a Days) String() string { return a.d.String() }
