package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/money"
)

// Status is the lifecycle state of a position.
type Status string

const (
	StatusActive    Status = "active"
	StatusWithdrawn Status = "withdrawn"
	StatusCompleted Status = "completed" // reached at maturity, outside the engine
)

// User is the identity that owns an account. Users are created by signup, which lives elsewhere.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Account holds a user's wallet balance.
type Account struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
}

// Opportunity is a shared funding campaign.
type Opportunity struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	Category       string          `json:"category"`
	RiskLevel      string          `json:"risk_level"`
	Description    string          `json:"description"`
	ExpectedReturn decimal.Decimal `json:"expected_return"` // annual rate in percent
	DurationMonths int             `json:"duration_months"`
	MinInvestment  decimal.Decimal `json:"min_investment"`
	InvestorCount  int             `json:"investor_count"`
	AmountRaised   decimal.Decimal `json:"amount_raised"`
	FundingGoal    decimal.Decimal `json:"funding_goal"`
	KeyHighlights  string          `json:"key_highlights"`
	Location       string          `json:"location"`
	Icon           string          `json:"icon"`
}

// FundingProgress is amount_raised as a percentage of funding_goal.
func (o Opportunity) FundingProgress() decimal.Decimal {
	return money.FundingProgress(o.AmountRaised, o.FundingGoal)
}

// Position is one user's stake in one opportunity.
type Position struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	OpportunityID  int64           `json:"opportunity_id"`
	AmountInvested decimal.Decimal `json:"amount_invested"`
	ExpectedReturn decimal.Decimal `json:"expected_return"` // rate snapshot taken at creation
	Status         Status          `json:"status"`
	InvestmentDate time.Time       `json:"investment_date"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
}

// EntryKind names the operation that produced a ledger entry.
type EntryKind string

const (
	EntrySubscribe   EntryKind = "subscribe"
	EntryTopUp       EntryKind = "top_up"
	EntryWithdraw    EntryKind = "withdraw"
	EntryExit        EntryKind = "exit"
	EntryTransferOut EntryKind = "transfer_out"
	EntryTransferIn  EntryKind = "transfer_in"
	EntryDeposit     EntryKind = "deposit"
)

// LedgerEntry is the audit record written alongside every committed operation.
type LedgerEntry struct {
	ID            int64           `json:"id"`
	Reference     string          `json:"reference"`
	UserID        int64           `json:"user_id"`
	InvestmentID  *int64          `json:"investment_id,omitempty"`
	OpportunityID *int64          `json:"opportunity_id,omitempty"`
	Kind          EntryKind       `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Penalty       decimal.Decimal `json:"penalty"`
	WalletDelta   decimal.Decimal `json:"wallet_delta"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PositionView joins a position with its opportunity for the profile page.
type PositionView struct {
	Position
	Opportunity Opportunity
}
