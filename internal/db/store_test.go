package db_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvakonge/investment-ledger/internal/db"
	"github.com/atharvakonge/investment-ledger/internal/ledger"
	"github.com/atharvakonge/investment-ledger/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func walletOf(t *testing.T, store *db.Store, userID int64) decimal.Decimal {
	t.Helper()
	acct, err := store.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	return acct.WalletBalance
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	database := db.SetupTestDB(t)

	ran, err := db.RunMigrations(context.Background(), database, db.Migrations())
	require.NoError(t, err)
	assert.Empty(t, ran, "second run must not re-apply migrations")
}

func TestSeedOpportunitiesSkipsExisting(t *testing.T) {
	database := db.SetupTestDB(t)
	ctx := context.Background()

	n, err := db.SeedOpportunities(ctx, database, db.SampleOpportunities())
	require.NoError(t, err)
	assert.Equal(t, len(db.SampleOpportunities()), n)

	n, err = db.SeedOpportunities(ctx, database, db.SampleOpportunities())
	require.NoError(t, err)
	assert.Zero(t, n)

	opps, err := db.NewStore(database, time.Second).ListOpportunities(ctx)
	require.NoError(t, err)
	assert.Len(t, opps, len(db.SampleOpportunities()))
}

func TestSubscribeTransferExit_Postgres(t *testing.T) {
	database := db.SetupTestDB(t)
	ctx := context.Background()

	store := db.NewStore(database, 5*time.Second)
	policy := ledger.DefaultPolicy()
	policy.TopUpMinimum = false
	svc := ledger.NewService(store, policy)

	alice := db.CreateTestUser(t, database, "alice", "10000.00")
	bob := db.CreateTestUser(t, database, "bob", "10000.00")
	opp := db.CreateTestOpportunity(t, database, "1000.00", "10000.00")

	sub, err := svc.Subscribe(ctx, ledger.SubscribeRequest{UserID: alice.ID, OpportunityID: opp.ID, Amount: dec("1000")})
	require.NoError(t, err)
	assert.True(t, sub.Opportunity.AmountRaised.Equal(dec("1000")))
	assert.Equal(t, 1, sub.Opportunity.InvestorCount)
	assert.True(t, sub.Opportunity.FundingProgress().Equal(dec("10")))

	top, err := svc.TopUp(ctx, ledger.TopUpRequest{UserID: alice.ID, InvestmentID: sub.Position.ID, Amount: dec("500")})
	require.NoError(t, err)
	assert.True(t, top.Position.AmountInvested.Equal(dec("1500")))

	tr, err := svc.Transfer(ctx, ledger.TransferRequest{
		UserID: alice.ID, InvestmentID: sub.Position.ID, Recipient: bob.Email, Amount: dec("1500"),
	})
	require.NoError(t, err)
	assert.True(t, tr.Opportunity.AmountRaised.Equal(dec("1500")))

	before := walletOf(t, store, bob.ID)
	out, err := svc.Exit(ctx, ledger.ExitRequest{UserID: bob.ID, InvestmentID: tr.RecipientPositionID})
	require.NoError(t, err)
	assert.True(t, out.Opportunity.AmountRaised.IsZero())
	assert.Equal(t, 0, out.Opportunity.InvestorCount)
	assert.True(t, walletOf(t, store, bob.ID).Equal(before.Add(dec("1425"))))

	history, err := store.ListEntries(ctx, bob.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.EntryExit, history[0].Kind)
	assert.Equal(t, models.EntryTransferIn, history[1].Kind)

	views, err := store.ListPositions(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, models.StatusWithdrawn, views[0].Status)
	assert.Equal(t, opp.Title, views[0].Opportunity.Title)
}

func TestFailedTransferLeavesRowsUnchanged_Postgres(t *testing.T) {
	database := db.SetupTestDB(t)
	ctx := context.Background()
	store := db.NewStore(database, 5*time.Second)
	svc := ledger.NewService(store, ledger.DefaultPolicy())

	alice := db.CreateTestUser(t, database, "alice", "5000.00")
	opp := db.CreateTestOpportunity(t, database, "1000.00", "10000.00")
	sub, err := svc.Subscribe(ctx, ledger.SubscribeRequest{UserID: alice.ID, OpportunityID: opp.ID, Amount: dec("2000")})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, ledger.TransferRequest{
		UserID: alice.ID, InvestmentID: sub.Position.ID, Recipient: alice.Username, Amount: dec("1000"),
	})
	require.ErrorIs(t, err, ledger.ErrSelfTransfer)

	_, err = svc.Transfer(ctx, ledger.TransferRequest{
		UserID: alice.ID, InvestmentID: sub.Position.ID, Recipient: "nobody@test.com", Amount: dec("1000"),
	})
	require.ErrorIs(t, err, ledger.ErrRecipientNotFound)

	views, err := store.ListPositions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].AmountInvested.Equal(dec("2000")))
	assert.True(t, views[0].Opportunity.AmountRaised.Equal(dec("2000")))
	assert.True(t, walletOf(t, store, alice.ID).Equal(dec("3000")))
}

func TestConcurrentTopUps_Postgres(t *testing.T) {
	database := db.SetupTestDB(t)
	ctx := context.Background()
	store := db.NewStore(database, 5*time.Second)
	svc := ledger.NewService(store, ledger.DefaultPolicy())

	alice := db.CreateTestUser(t, database, "concurrent_user", "20000.00")
	opp := db.CreateTestOpportunity(t, database, "100.00", "100000.00")
	sub, err := svc.Subscribe(ctx, ledger.SubscribeRequest{UserID: alice.ID, OpportunityID: opp.ID, Amount: dec("100")})
	require.NoError(t, err)

	const numTopUps = 10
	var wg sync.WaitGroup
	errs := make(chan error, numTopUps)
	for i := 0; i < numTopUps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TopUp(ctx, ledger.TopUpRequest{UserID: alice.ID, InvestmentID: sub.Position.ID, Amount: dec("100")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	views, err := store.ListPositions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	want := dec(fmt.Sprintf("%d", 100*(numTopUps+1)))
	assert.True(t, views[0].AmountInvested.Equal(want), "Race condition detected! amount_invested = %s", views[0].AmountInvested)
	assert.True(t, views[0].Opportunity.AmountRaised.Equal(want), "Race condition detected! amount_raised = %s", views[0].Opportunity.AmountRaised)
	assert.True(t, walletOf(t, store, alice.ID).Equal(dec("20000").Sub(want)))
}

func TestLockTimeoutIsRetryable_Postgres(t *testing.T) {
	database := db.SetupTestDB(t)
	ctx := context.Background()
	store := db.NewStore(database, 100*time.Millisecond)
	svc := ledger.NewService(store, ledger.DefaultPolicy())

	alice := db.CreateTestUser(t, database, "locked_user", "5000.00")
	opp := db.CreateTestOpportunity(t, database, "100.00", "1000.00")

	holder, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = holder.LockAccount(ctx, alice.ID)
	require.NoError(t, err)

	_, err = svc.Subscribe(ctx, ledger.SubscribeRequest{UserID: alice.ID, OpportunityID: opp.ID, Amount: dec("100")})
	require.ErrorIs(t, err, ledger.ErrConflict)
	assert.True(t, ledger.IsRetryable(err))
	require.NoError(t, holder.Rollback())

	assert.True(t, walletOf(t, store, alice.ID).Equal(dec("5000")), "timed out unit must not apply")
}
