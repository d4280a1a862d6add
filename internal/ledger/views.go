package ledger

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/models"
	"github.com/atharvakonge/investment-ledger/internal/valuation"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// InvestmentView is a position with its display valuation.
type InvestmentView struct {
	models.PositionView
	CurrentValue decimal.Decimal
}

// Profile is the read-only snapshot of a user's account and positions.
type Profile struct {
	User                 models.User
	Account              models.Account
	TotalInvestmentValue decimal.Decimal
	Investments          []InvestmentView
}

// Profile loads the account and positions of a user. Current values are
// estimates for display and never feed back into the ledger.
func (s *Service) Profile(ctx context.Context, userID int64) (Profile, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	positions, err := s.store.ListPositions(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("listing positions: %w", err)
	}

	now := s.now()
	investments := lo.Map(positions, func(p models.PositionView, _ int) InvestmentView {
		return InvestmentView{
			PositionView: p,
			CurrentValue: valuation.CurrentValue(p.AmountInvested, p.InvestmentDate, p.ExpectedReturn, now),
		}
	})

	total := decimal.Zero
	for _, inv := range investments {
		if inv.Status != models.StatusWithdrawn {
			total = total.Add(inv.CurrentValue)
		}
	}

	return Profile{
		User:                 user,
		Account:              acct,
		TotalInvestmentValue: total,
		Investments:          investments,
	}, nil
}

// Opportunities lists every opportunity.
func (s *Service) Opportunities(ctx context.Context) ([]models.Opportunity, error) {
	opps, err := s.store.ListOpportunities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing opportunities: %w", err)
	}
	return opps, nil
}

// History returns the user's ledger entries, newest first.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	entries, err := s.store.ListEntries(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing ledger entries: %w", err)
	}
	return entries, nil
}
