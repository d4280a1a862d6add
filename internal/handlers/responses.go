package handlers

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/ledger"
	"github.com/atharvakonge/investment-ledger/internal/models"
	"github.com/atharvakonge/investment-ledger/internal/money"
	"github.com/atharvakonge/investment-ledger/internal/valuation"
)

// OpportunityResponse is one campaign with funding progress computed on read.
type OpportunityResponse struct {
	ID              int64        `json:"id"`
	Title           string       `json:"title"`
	Category        string       `json:"category"`
	RiskLevel       string       `json:"risk_level"`
	Description     string       `json:"description"`
	ExpectedReturn  money.Amount `json:"expected_return"`
	DurationMonths  int          `json:"duration_months"`
	MinInvestment   money.Amount `json:"min_investment"`
	InvestorCount   int          `json:"investor_count"`
	AmountRaised    money.Amount `json:"amount_raised"`
	FundingGoal     money.Amount `json:"funding_goal"`
	FundingProgress money.Amount `json:"funding_progress"`
	KeyHighlights   string       `json:"key_highlights"`
	Location        string       `json:"location"`
	Icon            string       `json:"icon"`
}

func newOpportunityResponse(o models.Opportunity) OpportunityResponse {
	return OpportunityResponse{
		ID:              o.ID,
		Title:           o.Title,
		Category:        o.Category,
		RiskLevel:       o.RiskLevel,
		Description:     o.Description,
		ExpectedReturn:  money.Of(o.ExpectedReturn),
		DurationMonths:  o.DurationMonths,
		MinInvestment:   money.Of(o.MinInvestment),
		InvestorCount:   o.InvestorCount,
		AmountRaised:    money.Of(o.AmountRaised),
		FundingGoal:     money.Of(o.FundingGoal),
		FundingProgress: money.Of(o.FundingProgress()),
		KeyHighlights:   o.KeyHighlights,
		Location:        o.Location,
		Icon:            o.Icon,
	}
}

// InvestmentResponse is a position joined with its opportunity.
type InvestmentResponse struct {
	ID              int64         `json:"id"`
	OpportunityID   int64         `json:"opportunity_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Category        string        `json:"category"`
	RiskLevel       string        `json:"risk_level"`
	AmountInvested  money.Amount  `json:"amount_invested"`
	CurrentValue    money.Amount  `json:"current_value"`
	ExpectedReturn  money.Amount  `json:"expected_return"`
	Status          models.Status `json:"status"`
	InvestmentDate  time.Time     `json:"investment_date"`
	EndDate         *time.Time    `json:"end_date"`
	FundingGoal     money.Amount  `json:"funding_goal"`
	AmountRaised    money.Amount  `json:"amount_raised"`
	FundingProgress money.Amount  `json:"funding_progress"`
	Location        string        `json:"location"`
	Icon            string        `json:"icon"`
	DurationMonths  int           `json:"duration_months"`
}

func newInvestmentResponse(p models.Position, o models.Opportunity, currentValue decimal.Decimal) InvestmentResponse {
	return InvestmentResponse{
		ID:              p.ID,
		OpportunityID:   p.OpportunityID,
		Title:           o.Title,
		Description:     o.Description,
		Category:        o.Category,
		RiskLevel:       o.RiskLevel,
		AmountInvested:  money.Of(p.AmountInvested),
		CurrentValue:    money.Of(currentValue),
		ExpectedReturn:  money.Of(p.ExpectedReturn),
		Status:          p.Status,
		InvestmentDate:  p.InvestmentDate,
		EndDate:         p.EndDate,
		FundingGoal:     money.Of(o.FundingGoal),
		AmountRaised:    money.Of(o.AmountRaised),
		FundingProgress: money.Of(o.FundingProgress()),
		Location:        o.Location,
		Icon:            o.Icon,
		DurationMonths:  o.DurationMonths,
	}
}

func positionResponse(res ledger.PositionResult, now time.Time) InvestmentResponse {
	p := res.Position
	return newInvestmentResponse(p, res.Opportunity,
		valuation.CurrentValue(p.AmountInvested, p.InvestmentDate, p.ExpectedReturn, now))
}

type userResponse struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type accountResponse struct {
	ID                   int64        `json:"id"`
	WalletBalance        money.Amount `json:"wallet_balance"`
	TotalInvestmentValue money.Amount `json:"total_investment_value"`
}

// ProfileResponse is the account and positions snapshot.
type ProfileResponse struct {
	User        userResponse         `json:"user"`
	Account     accountResponse      `json:"account"`
	Investments []InvestmentResponse `json:"investments"`
}

func newProfileResponse(p ledger.Profile) ProfileResponse {
	return ProfileResponse{
		User: userResponse{
			ID:        p.User.ID,
			FirstName: p.User.FirstName,
			LastName:  p.User.LastName,
			Username:  p.User.Username,
			Email:     p.User.Email,
			Role:      p.User.Role,
			CreatedAt: p.User.CreatedAt,
		},
		Account: accountResponse{
			ID:                   p.Account.ID,
			WalletBalance:        money.Of(p.Account.WalletBalance),
			TotalInvestmentValue: money.Of(p.TotalInvestmentValue),
		},
		Investments: lo.Map(p.Investments, func(inv ledger.InvestmentView, _ int) InvestmentResponse {
			return newInvestmentResponse(inv.Position, inv.Opportunity, inv.CurrentValue)
		}),
	}
}

// EntryResponse is one ledger history row.
type EntryResponse struct {
	ID            int64            `json:"id"`
	Reference     string           `json:"reference"`
	Kind          models.EntryKind `json:"kind"`
	InvestmentID  *int64           `json:"investment_id"`
	OpportunityID *int64           `json:"opportunity_id"`
	Amount        money.Amount     `json:"amount"`
	Penalty       money.Amount     `json:"penalty"`
	WalletDelta   money.Amount     `json:"wallet_delta"`
	Note          string           `json:"note,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

func newEntryResponse(e models.LedgerEntry, _ int) EntryResponse {
	return EntryResponse{
		ID:            e.ID,
		Reference:     e.Reference,
		Kind:          e.Kind,
		InvestmentID:  e.InvestmentID,
		OpportunityID: e.OpportunityID,
		Amount:        money.Of(e.Amount),
		Penalty:       money.Of(e.Penalty),
		WalletDelta:   money.Of(e.WalletDelta),
		Note:          e.Note,
		CreatedAt:     e.CreatedAt,
	}
}
