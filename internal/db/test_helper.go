package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/models"
)

// SetupTestDB connects to TEST_DATABASE_URL and applies the migrations. The
// test is skipped when the variable is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL test")
	}

	ctx := context.Background()
	conn, err := Open(ctx, url, PoolOptions{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if _, err := RunMigrations(ctx, conn, Migrations()); err != nil {
		conn.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		CleanupTestDB(t, conn)
		conn.Close()
	})
	return conn
}

// CleanupTestDB cleans up test data
func CleanupTestDB(t *testing.T, conn *sql.DB) {
	t.Helper()
	_, err := conn.Exec(`TRUNCATE ledger_entries, investments, accounts, investment_opportunities, users RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Logf("Warning: failed to clean up test tables: %v", err)
	}
}

// CreateTestUser creates a user with an account holding balance.
func CreateTestUser(t *testing.T, conn *sql.DB, username string, balance string) models.User {
	t.Helper()

	// Make username unique by adding timestamp
	unique := fmt.Sprintf("%s_%d", username, time.Now().UnixNano())

	u, _, err := CreateUser(context.Background(), conn,
		models.User{Username: unique, Email: unique + "@test.com"}, decimal.RequireFromString(balance))
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return u
}

// CreateTestOpportunity inserts one opportunity with the given minimum and goal.
func CreateTestOpportunity(t *testing.T, conn *sql.DB, minimum, goal string) models.Opportunity {
	t.Helper()

	o := opportunity(fmt.Sprintf("Test Opportunity %d", time.Now().UnixNano()), "Crops", "Medium",
		"test opportunity", "12.00", 12, minimum, goal, "", "", "")
	err := conn.QueryRow(`
		INSERT INTO investment_opportunities
			(title, category, risk_level, description, expected_return, duration_months, min_investment, funding_goal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		o.Title, o.Category, o.RiskLevel, o.Description, o.ExpectedReturn, o.DurationMonths,
		o.MinInvestment, o.FundingGoal,
	).Scan(&o.ID)
	if err != nil {
		t.Fatalf("Failed to create test opportunity: %v", err)
	}
	return o
}
