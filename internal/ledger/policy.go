package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/money"
)

// PositionPolicy decides whether new money for an opportunity joins the
// caller's existing active position or opens a new one.
type PositionPolicy string

const (
	MergePositions  PositionPolicy = "merge"
	AppendPositions PositionPolicy = "append"
)

// ParsePositionPolicy accepts "merge" or "append".
func ParsePositionPolicy(s string) (PositionPolicy, error) {
	switch PositionPolicy(s) {
	case MergePositions, AppendPositions:
		return PositionPolicy(s), nil
	}
	return "", fmt.Errorf("unknown position policy %q", s)
}

// Policy carries the product rules applied on top of the position state machine.
type Policy struct {
	// PenaltyRate is the fraction of an early withdrawal kept back from the wallet.
	PenaltyRate decimal.Decimal
	Positions   PositionPolicy
	// TopUpMinimum requires every top-up to meet the opportunity minimum on
	// its own. When false only the resulting position has to.
	TopUpMinimum bool
}

// DefaultPolicy charges 5% on early withdrawal, merges top-ups into one row
// and holds each top-up to the opportunity minimum.
func DefaultPolicy() Policy {
	return Policy{
		PenaltyRate:  decimal.RequireFromString("0.05"),
		Positions:    MergePositions,
		TopUpMinimum: true,
	}
}

// Payout splits a withdrawn amount into what returns to the wallet and the penalty kept.
func (p Policy) Payout(amount decimal.Decimal) (returned, penalty decimal.Decimal) {
	penalty = money.Round(amount.Mul(p.PenaltyRate))
	return amount.Sub(penalty), penalty
}
