package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/models"
)

// Adjust applies delta to an opportunity's raised amount and recomputes its
// investor count. It must run inside the unit that changed the positions.
//
// The count is a full rescan of the opportunity's positions; it relies on the
// opportunity row lock already being held by tx.
func Adjust(ctx context.Context, tx Tx, opportunityID int64, delta decimal.Decimal) (models.Opportunity, error) {
	opp, err := tx.AddAmountRaised(ctx, opportunityID, delta)
	if err != nil {
		return models.Opportunity{}, err
	}

	count, err := tx.CountInvestors(ctx, opportunityID)
	if err != nil {
		return models.Opportunity{}, fmt.Errorf("counting investors: %w", err)
	}
	if err := tx.SetInvestorCount(ctx, opportunityID, count); err != nil {
		return models.Opportunity{}, fmt.Errorf("updating investor count: %w", err)
	}
	opp.InvestorCount = count
	return opp, nil
}
