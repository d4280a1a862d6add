package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvakonge/investment-ledger/internal/ledger"
	"github.com/atharvakonge/investment-ledger/internal/models"
)

func seeded(t *testing.T) (*Store, models.User, models.Account, models.Opportunity) {
	t.Helper()
	s := New(100 * time.Millisecond)
	u, acct := s.AddUser(models.User{Username: "alice", Email: "Alice@Example.com"}, decimal.RequireFromString("500"))
	opp := s.AddOpportunity(models.Opportunity{
		Title:         "Community Bakery",
		MinInvestment: decimal.RequireFromString("100"),
		FundingGoal:   decimal.RequireFromString("1000"),
		AmountRaised:  decimal.Zero,
	})
	return s, u, acct, opp
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s, u, acct, opp := seeded(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.LockAccount(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, tx.SetWalletBalance(ctx, acct.ID, decimal.RequireFromString("400")))
	_, err = tx.InsertPosition(ctx, models.Position{UserID: u.ID, OpportunityID: opp.ID,
		AmountInvested: decimal.RequireFromString("100"), Status: models.StatusActive})
	require.NoError(t, err)
	_, err = tx.AddAmountRaised(ctx, opp.ID, decimal.RequireFromString("100"))
	require.NoError(t, err)
	require.NoError(t, tx.AppendEntry(ctx, models.LedgerEntry{UserID: u.ID, Kind: models.EntrySubscribe}))
	require.NoError(t, tx.Rollback())

	got, err := s.GetAccount(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.WalletBalance.Equal(decimal.RequireFromString("500")))
	assert.Empty(t, s.Positions())
	o, _ := s.Opportunity(opp.ID)
	assert.True(t, o.AmountRaised.IsZero())
	entries, err := s.ListEntries(ctx, u.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// locks were released
	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()
	_, err = tx2.LockAccount(ctx, u.ID)
	assert.NoError(t, err)
}

func TestCommitPublishesWrites(t *testing.T) {
	s, u, acct, opp := seeded(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SetWalletBalance(ctx, acct.ID, decimal.RequireFromString("400")))
	pos, err := tx.InsertPosition(ctx, models.Position{UserID: u.ID, OpportunityID: opp.ID,
		AmountInvested: decimal.RequireFromString("100"), Status: models.StatusActive})
	require.NoError(t, err)

	count, err := tx.CountInvestors(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a unit sees its own writes")
	assert.Empty(t, s.Positions(), "other readers do not")

	require.NoError(t, tx.SetInvestorCount(ctx, opp.ID, count))
	require.NoError(t, tx.AppendEntry(ctx, models.LedgerEntry{UserID: u.ID, Kind: models.EntrySubscribe}))
	require.NoError(t, tx.Commit())
	assert.Error(t, tx.Commit(), "a finished unit cannot commit twice")
	assert.NoError(t, tx.Rollback())

	got, ok := s.Position(pos.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusActive, got.Status)
	o, _ := s.Opportunity(opp.ID)
	assert.Equal(t, 1, o.InvestorCount)

	entries, err := s.ListEntries(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ID)
}

func TestNegativeWalletIsRejected(t *testing.T) {
	s, _, acct, _ := seeded(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	assert.Error(t, tx.SetWalletBalance(ctx, acct.ID, decimal.RequireFromString("-0.01")))
}

func TestLockedRowTimesOutAsConflict(t *testing.T) {
	s, u, _, _ := seeded(t)
	ctx := context.Background()

	holder, err := s.Begin(ctx)
	require.NoError(t, err)
	defer holder.Rollback()
	_, err = holder.LockAccount(ctx, u.ID)
	require.NoError(t, err)

	waiter, err := s.Begin(ctx)
	require.NoError(t, err)
	defer waiter.Rollback()
	_, err = waiter.LockAccount(ctx, u.ID)
	assert.ErrorIs(t, err, ledger.ErrConflict)
	assert.True(t, ledger.IsRetryable(err))
}

func TestLookupErrors(t *testing.T) {
	s, u, _, opp := seeded(t)
	ctx := context.Background()
	orphan := s.AddUserWithoutAccount(models.User{Username: "carol", Email: "carol@example.com"})

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	found, err := tx.FindUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID, "email match ignores case")

	_, err = tx.FindUser(ctx, "nobody")
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)

	_, err = tx.LockAccount(ctx, orphan.ID)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = tx.LockOpportunity(ctx, opp.ID+1)
	assert.ErrorIs(t, err, ledger.ErrOpportunityNotFound)

	_, err = tx.LockPosition(ctx, 99, u.ID)
	assert.ErrorIs(t, err, ledger.ErrPositionNotFound)

	_, ok, err := tx.LockActivePosition(ctx, u.ID, opp.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
