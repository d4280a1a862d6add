package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/models"
)

// Store is the relational storage the engine runs against.
type Store interface {
	Reader
	// Begin opens an atomic unit. Locks taken through the returned Tx are held
	// until Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)
}

// Reader serves the read-only views. Reads are not locked.
type Reader interface {
	GetUser(ctx context.Context, userID int64) (models.User, error)
	GetAccount(ctx context.Context, userID int64) (models.Account, error)
	ListPositions(ctx context.Context, userID int64) ([]models.PositionView, error)
	ListOpportunities(ctx context.Context) ([]models.Opportunity, error)
	ListEntries(ctx context.Context, userID int64, limit int) ([]models.LedgerEntry, error)
}

// Tx is one atomic unit of work. Lock* methods take a row lock that blocks
// other units touching the same row; implementations surface a lock wait
// timeout as ErrConflict. Rollback after Commit is a no-op.
type Tx interface {
	// FindUser resolves an email or username. Returns ErrUserNotFound.
	FindUser(ctx context.Context, identifier string) (models.User, error)

	// LockAccount returns ErrAccountNotFound when the user has no account.
	LockAccount(ctx context.Context, userID int64) (models.Account, error)
	// LockPosition returns ErrPositionNotFound unless the position exists and belongs to userID.
	LockPosition(ctx context.Context, positionID, userID int64) (models.Position, error)
	// LockActivePosition finds the user's active position on an opportunity, if any.
	LockActivePosition(ctx context.Context, userID, opportunityID int64) (models.Position, bool, error)
	// LockOpportunity returns ErrOpportunityNotFound.
	LockOpportunity(ctx context.Context, opportunityID int64) (models.Opportunity, error)

	SetWalletBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
	InsertPosition(ctx context.Context, p models.Position) (models.Position, error)
	// UpdatePosition persists owner, amount and status.
	UpdatePosition(ctx context.Context, p models.Position) error

	// AddAmountRaised adds delta to amount_raised, flooring the result at zero.
	AddAmountRaised(ctx context.Context, opportunityID int64, delta decimal.Decimal) (models.Opportunity, error)
	// CountInvestors counts distinct users with a non-withdrawn, funded position.
	CountInvestors(ctx context.Context, opportunityID int64) (int, error)
	SetInvestorCount(ctx context.Context, opportunityID int64, count int) error

	AppendEntry(ctx context.Context, e models.LedgerEntry) error

	Commit() error
	Rollback() error
}

// Notifier is told about opportunity totals after a unit commits.
type Notifier interface {
	OpportunityChanged(opp models.Opportunity)
}
