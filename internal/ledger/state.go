package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/models"
)

// A position holding money must hold at least the opportunity minimum.
func checkHolding(amount, minimum decimal.Decimal) error {
	if amount.IsPositive() && amount.LessThan(minimum) {
		return fmt.Errorf("%w (minimum %s)", ErrBelowMinimumRemainder, minimum.StringFixed(2))
	}
	return nil
}

func invalidStatus(p models.Position, op string) error {
	return fmt.Errorf("%w: cannot %s investment with status %s", ErrInvalidStatus, op, p.Status)
}

// topUp adds amount to an active position.
func topUp(p models.Position, amount decimal.Decimal) (models.Position, error) {
	if p.Status != models.StatusActive {
		return p, invalidStatus(p, "top up")
	}
	p.AmountInvested = p.AmountInvested.Add(amount)
	return p, nil
}

// withdraw removes amount from p. Active positions may be reduced down to the
// minimum or emptied; completed positions only leave in full. penalized reports
// whether the early-withdrawal penalty applies.
func withdraw(p models.Position, amount, minimum decimal.Decimal) (next models.Position, penalized bool, err error) {
	switch p.Status {
	case models.StatusActive:
		if amount.GreaterThan(p.AmountInvested) {
			return p, false, fmt.Errorf("%w: invested %s, requested %s", ErrExceedsPosition,
				p.AmountInvested.StringFixed(2), amount.StringFixed(2))
		}
		remaining := p.AmountInvested.Sub(amount)
		if err := checkHolding(remaining, minimum); err != nil {
			return p, false, err
		}
		p.AmountInvested = remaining
		if remaining.IsZero() {
			p.Status = models.StatusWithdrawn
		}
		return p, true, nil

	case models.StatusCompleted:
		if !amount.Equal(p.AmountInvested) {
			return p, false, ErrCompletedPartial
		}
		p.AmountInvested = decimal.Zero
		p.Status = models.StatusWithdrawn
		return p, false, nil
	}
	return p, false, invalidStatus(p, "withdraw from")
}

// exit empties an active position.
func exit(p models.Position) (models.Position, error) {
	if p.Status != models.StatusActive {
		return p, fmt.Errorf("%w: only active investments can be exited (current status: %s)", ErrInvalidStatus, p.Status)
	}
	if !p.AmountInvested.IsPositive() {
		return p, ErrNothingToWithdraw
	}
	p.AmountInvested = decimal.Zero
	p.Status = models.StatusWithdrawn
	return p, nil
}

// transferOut takes amount out of the sender's position. A full transfer
// empties the row; the caller decides whether the row itself moves.
func transferOut(p models.Position, amount, minimum decimal.Decimal) (models.Position, error) {
	if p.Status != models.StatusActive && p.Status != models.StatusCompleted {
		return p, invalidStatus(p, "transfer")
	}
	if amount.GreaterThan(p.AmountInvested) {
		return p, fmt.Errorf("%w: invested %s, requested %s", ErrExceedsPosition,
			p.AmountInvested.StringFixed(2), amount.StringFixed(2))
	}
	remaining := p.AmountInvested.Sub(amount)
	if err := checkHolding(remaining, minimum); err != nil {
		return p, err
	}
	p.AmountInvested = remaining
	if remaining.IsZero() {
		p.Status = models.StatusWithdrawn
	}
	return p, nil
}
