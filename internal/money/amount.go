package money

import (
	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept for every monetary value.
const Precision = 2

var hundred = decimal.NewFromInt(100)

// Amount is a decimal that always serializes as a JSON number with two fractional digits.
type Amount decimal.Decimal

// Of wraps d for JSON output.
func Of(d decimal.Decimal) Amount { return Amount(d) }

// Decimal returns the underlying value.
func (a Amount) Decimal() decimal.Decimal { return decimal.Decimal(a) }

func (a Amount) String() string { return decimal.Decimal(a).StringFixed(Precision) }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).StringFixed(Precision)), nil
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*a = Amount(d)
	return nil
}

// Round rounds d half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Precision)
}

// FundingProgress returns raised/goal as a percentage rounded to 2 places, or 0 when goal <= 0.
func FundingProgress(raised, goal decimal.Decimal) decimal.Decimal {
	if !goal.IsPositive() {
		return decimal.Zero
	}
	return raised.Div(goal).Mul(hundred).Round(Precision)
}
