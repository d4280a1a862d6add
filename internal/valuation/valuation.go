// Package valuation estimates the current value of a position for display.
// The figure is advisory: payouts are always driven by the invested amount.
package valuation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/money"
)

var (
	hundred       = decimal.NewFromInt(100)
	monthsPerYear = decimal.NewFromInt(12)
	one           = decimal.NewFromInt(1)
)

// ElapsedMonths counts calendar month boundaries crossed between start and now.
// A start in the future yields 0.
func ElapsedMonths(start, now time.Time) int {
	months := (now.Year()-start.Year())*12 + int(now.Month()-start.Month())
	if months < 0 {
		return 0
	}
	return months
}

// CurrentValue compounds principal monthly at annualRate (a percentage) for the
// months elapsed since start, rounded to cents. Non-positive principal or a zero
// start date returns principal unchanged.
func CurrentValue(principal decimal.Decimal, start time.Time, annualRate decimal.Decimal, now time.Time) decimal.Decimal {
	if !principal.IsPositive() || start.IsZero() {
		return principal
	}

	monthlyRate := annualRate.Div(hundred).Div(monthsPerYear)
	months := ElapsedMonths(start, now)
	if months == 0 {
		return money.Round(principal)
	}

	growth := one.Add(monthlyRate).Pow(decimal.NewFromInt(int64(months)))
	return money.Round(principal.Mul(growth))
}
