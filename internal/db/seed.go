package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/models"
)

func opportunity(title, category, risk, description, expectedReturn string, months int, minimum, goal, highlights, location, icon string) models.Opportunity {
	return models.Opportunity{
		Title:          title,
		Category:       category,
		RiskLevel:      risk,
		Description:    description,
		ExpectedReturn: decimal.RequireFromString(expectedReturn),
		DurationMonths: months,
		MinInvestment:  decimal.RequireFromString(minimum),
		AmountRaised:   decimal.Zero,
		FundingGoal:    decimal.RequireFromString(goal),
		KeyHighlights:  highlights,
		Location:       location,
		Icon:           icon,
	}
}

// SampleOpportunities is the catalogue loaded by the seed command.
func SampleOpportunities() []models.Opportunity {
	return []models.Opportunity{
		opportunity("Organic Wheat Farm Expansion", "Crops", "Medium",
			"Invest in expanding organic wheat production across 500 acres of premium farmland.",
			"73.0", 20, "10000.00", "500000.00",
			"Certified organic, Long-term contracts, Sustainable farming", "Saskatchewan, Canada", "Sprout"),
		opportunity("Premium Beef Cattle Ranch", "Livestock", "Medium-High",
			"Partner with established ranchers to raise premium grass-fed beef cattle.",
			"30.0", 24, "15000.00", "600000.00",
			"Grass-fed, Hormone-free, Regenerative grazing", "Queensland, Australia", "Beef"),
		opportunity("Biodynamic Vineyard & Winery", "Wine", "Medium-High",
			"Establish a vineyard producing biodynamic wines with global export potential.",
			"50.0", 30, "20000.00", "750000.00",
			"Biodynamic-certified, Eco-tourism potential, Premium wine demand", "Tuscany, Italy", "WineIcon"),
		opportunity("Regenerative Almond Orchard", "Tree Crops", "Medium",
			"Develop a pesticide-free almond orchard using biodynamic soil practices.",
			"70.0", 22, "12000.00", "400000.00",
			"Water-efficient irrigation, Pollinator-friendly, High export demand", "Andalusia, Spain", "Nut"),
		opportunity("Medicinal Herb Greenhouse", "AgriTech", "Medium",
			"Expand greenhouses for biodynamic medicinal herbs such as lavender, chamomile, and turmeric.",
			"55.0", 18, "8000.00", "350000.00",
			"Wellness & pharmaceutical demand, Year-round cultivation, Biodynamic-certified", "Kerala, India", "Leaf"),
		opportunity("Organic Dairy & Cheese Cooperative", "Dairy", "Medium",
			"Support a cooperative producing biodynamic milk and artisanal cheese.",
			"60.0", 26, "18000.00", "550000.00",
			"Animal welfare, Farm-to-table distribution, Premium dairy products", "Bavaria, Germany", "MilkIcon"),
		opportunity("Iowa Farmland Investment Trust", "Farmland", "Low-Medium",
			"Acquire and lease premium farmland in Iowa's most productive agricultural regions.",
			"66.0", 36, "250000.00", "1000000.00",
			"Stable land value, Consistent lease income, Low-risk farmland asset", "Iowa, United States", "LandPlot"),
		opportunity("Vertical Farming Technology", "AgTech", "High",
			"Invest in cutting-edge vertical farming facilities producing leafy greens year-round.",
			"44.0", 28, "30000.00", "900000.00",
			"Controlled-environment agriculture, Year-round supply, High scalability", "Singapore", "Building"),
	}
}

// SeedOpportunities inserts opportunities whose title is not present yet and
// returns how many were added.
func SeedOpportunities(ctx context.Context, conn *sql.DB, opps []models.Opportunity) (int, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning seed: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, o := range opps {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO investment_opportunities
				(title, category, risk_level, description, expected_return, duration_months,
				 min_investment, amount_raised, funding_goal, key_highlights, location, icon)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (title) DO NOTHING`,
			o.Title, o.Category, o.RiskLevel, o.Description, o.ExpectedReturn, o.DurationMonths,
			o.MinInvestment, o.AmountRaised, o.FundingGoal, o.KeyHighlights, o.Location, o.Icon)
		if err != nil {
			return 0, fmt.Errorf("seeding opportunity %q: %w", o.Title, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing seed: %w", err)
	}
	return inserted, nil
}

// CreateUser inserts a user with its account, as signup does.
func CreateUser(ctx context.Context, conn *sql.DB, u models.User, balance decimal.Decimal) (models.User, models.Account, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, models.Account{}, fmt.Errorf("beginning signup: %w", err)
	}
	defer tx.Rollback()

	if u.Role == "" {
		u.Role = "investor"
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (username, email, first_name, last_name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		u.Username, u.Email, u.FirstName, u.LastName, u.Role,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return models.User{}, models.Account{}, fmt.Errorf("inserting user %q: %w", u.Username, err)
	}

	acct := models.Account{UserID: u.ID, WalletBalance: balance}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO accounts (user_id, wallet_balance) VALUES ($1, $2) RETURNING id`, u.ID, balance,
	).Scan(&acct.ID)
	if err != nil {
		return models.User{}, models.Account{}, fmt.Errorf("inserting account for %q: %w", u.Username, err)
	}

	if err := tx.Commit(); err != nil {
		return models.User{}, models.Account{}, fmt.Errorf("committing signup: %w", err)
	}
	return u, acct, nil
}
