package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/ledger"
	"github.com/atharvakonge/investment-ledger/internal/models"
)

// Store is the PostgreSQL ledger.Store. Row locks are SELECT ... FOR UPDATE
// and a lock wait longer than the configured timeout aborts the unit.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewStore wraps an open connection pool.
func NewStore(conn *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{db: conn, lockTimeout: lockTimeout}
}

const (
	userColumns        = `id, username, email, first_name, last_name, role, created_at`
	accountColumns     = `id, user_id, wallet_balance`
	positionColumns    = `id, user_id, opportunity_id, amount_invested, expected_return, status, investment_date, end_date`
	opportunityColumns = `id, title, category, risk_level, description, expected_return, duration_months,
		min_investment, investor_count, amount_raised, funding_goal,
		COALESCE(key_highlights, ''), COALESCE(location, ''), COALESCE(icon, '')`
	entryColumns = `id, reference, user_id, investment_id, opportunity_id, kind, amount, penalty, wallet_delta, note, created_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.CreatedAt)
	return u, err
}

func scanAccount(row rowScanner) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.UserID, &a.WalletBalance)
	return a, err
}

func positionDest(p *models.Position, endDate *sql.NullTime) []any {
	return []any{&p.ID, &p.UserID, &p.OpportunityID, &p.AmountInvested, &p.ExpectedReturn,
		&p.Status, &p.InvestmentDate, endDate}
}

func scanPosition(row rowScanner) (models.Position, error) {
	var p models.Position
	var endDate sql.NullTime
	if err := row.Scan(positionDest(&p, &endDate)...); err != nil {
		return models.Position{}, err
	}
	if endDate.Valid {
		p.EndDate = &endDate.Time
	}
	return p, nil
}

func opportunityDest(o *models.Opportunity) []any {
	return []any{&o.ID, &o.Title, &o.Category, &o.RiskLevel, &o.Description, &o.ExpectedReturn,
		&o.DurationMonths, &o.MinInvestment, &o.InvestorCount, &o.AmountRaised, &o.FundingGoal,
		&o.KeyHighlights, &o.Location, &o.Icon}
}

func scanOpportunity(row rowScanner) (models.Opportunity, error) {
	var o models.Opportunity
	err := row.Scan(opportunityDest(&o)...)
	return o, err
}

func scanEntry(row rowScanner) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	var investmentID, opportunityID sql.NullInt64
	err := row.Scan(&e.ID, &e.Reference, &e.UserID, &investmentID, &opportunityID, &e.Kind,
		&e.Amount, &e.Penalty, &e.WalletDelta, &e.Note, &e.CreatedAt)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	if investmentID.Valid {
		e.InvestmentID = &investmentID.Int64
	}
	if opportunityID.Valid {
		e.OpportunityID = &opportunityID.Int64
	}
	return e, nil
}

// classify turns driver failures into ledger sentinels. notFound is returned
// for sql.ErrNoRows.
func classify(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) && notFound != nil {
		return notFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03", "40P01", "40001": // lock_not_available, deadlock_detected, serialization_failure
			return fmt.Errorf("%w: %s", ledger.ErrConflict, pqErr.Message)
		case "23514":
			if pqErr.Constraint == "accounts_wallet_balance_check" {
				return ledger.ErrInsufficientFunds
			}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, userID int64) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return models.User{}, classify(err, ledger.ErrUserNotFound)
	}
	return u, nil
}

func (s *Store) GetAccount(ctx context.Context, userID int64) (models.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID))
	if err != nil {
		return models.Account{}, classify(err, ledger.ErrAccountNotFound)
	}
	return a, nil
}

func (s *Store) ListPositions(ctx context.Context, userID int64) ([]models.PositionView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.user_id, i.opportunity_id, i.amount_invested, i.expected_return, i.status,
		       i.investment_date, i.end_date,
		       o.id, o.title, o.category, o.risk_level, o.description, o.expected_return, o.duration_months,
		       o.min_investment, o.investor_count, o.amount_raised, o.funding_goal,
		       COALESCE(o.key_highlights, ''), COALESCE(o.location, ''), COALESCE(o.icon, '')
		FROM investments i
		JOIN investment_opportunities o ON o.id = i.opportunity_id
		WHERE i.user_id = $1
		ORDER BY i.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	defer rows.Close()

	var views []models.PositionView
	for rows.Next() {
		var v models.PositionView
		var endDate sql.NullTime
		dest := append(positionDest(&v.Position, &endDate), opportunityDest(&v.Opportunity)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		if endDate.Valid {
			v.EndDate = &endDate.Time
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (s *Store) ListOpportunities(ctx context.Context) ([]models.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+opportunityColumns+` FROM investment_opportunities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying opportunities: %w", err)
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

func (s *Store) ListEntries(ctx context.Context, userID int64, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE user_id = $1 ORDER BY id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Begin opens a transaction with a bounded lock wait.
func (s *Store) Begin(ctx context.Context) (ledger.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err, nil)
	}
	if s.lockTimeout > 0 {
		// SET LOCAL does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			sqlTx.Rollback()
			return nil, fmt.Errorf("setting lock timeout: %w", err)
		}
	}
	return &tx{tx: sqlTx}, nil
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) FindUser(ctx context.Context, identifier string) (models.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE LOWER(email) = LOWER($1) OR username = $1
		ORDER BY id
		LIMIT 1`, identifier))
	if err != nil {
		return models.User{}, classify(err, ledger.ErrUserNotFound)
	}
	return u, nil
}

func (t *tx) LockAccount(ctx context.Context, userID int64) (models.Account, error) {
	a, err := scanAccount(t.tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return models.Account{}, classify(err, ledger.ErrAccountNotFound)
	}
	return a, nil
}

func (t *tx) LockPosition(ctx context.Context, positionID, userID int64) (models.Position, error) {
	p, err := scanPosition(t.tx.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM investments WHERE id = $1 AND user_id = $2 FOR UPDATE`, positionID, userID))
	if err != nil {
		return models.Position{}, classify(err, ledger.ErrPositionNotFound)
	}
	return p, nil
}

func (t *tx) LockActivePosition(ctx context.Context, userID, opportunityID int64) (models.Position, bool, error) {
	p, err := scanPosition(t.tx.QueryRowContext(ctx, `
		SELECT `+positionColumns+` FROM investments
		WHERE user_id = $1 AND opportunity_id = $2 AND status = 'active'
		ORDER BY id
		LIMIT 1
		FOR UPDATE`, userID, opportunityID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Position{}, false, nil
	}
	if err != nil {
		return models.Position{}, false, classify(err, nil)
	}
	return p, true, nil
}

func (t *tx) LockOpportunity(ctx context.Context, opportunityID int64) (models.Opportunity, error) {
	o, err := scanOpportunity(t.tx.QueryRowContext(ctx,
		`SELECT `+opportunityColumns+` FROM investment_opportunities WHERE id = $1 FOR UPDATE`, opportunityID))
	if err != nil {
		return models.Opportunity{}, classify(err, ledger.ErrOpportunityNotFound)
	}
	return o, nil
}

func (t *tx) SetWalletBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET wallet_balance = $2 WHERE id = $1`, accountID, balance)
	if err != nil {
		return classify(err, nil)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (t *tx) InsertPosition(ctx context.Context, p models.Position) (models.Position, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO investments (user_id, opportunity_id, amount_invested, expected_return, status, investment_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		p.UserID, p.OpportunityID, p.AmountInvested, p.ExpectedReturn, p.Status, p.InvestmentDate,
	).Scan(&p.ID)
	if err != nil {
		return models.Position{}, classify(err, nil)
	}
	return p, nil
}

func (t *tx) UpdatePosition(ctx context.Context, p models.Position) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE investments
		SET user_id = $2, amount_invested = $3, status = $4, end_date = $5
		WHERE id = $1`,
		p.ID, p.UserID, p.AmountInvested, p.Status, p.EndDate)
	if err != nil {
		return classify(err, nil)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrPositionNotFound
	}
	return nil
}

func (t *tx) AddAmountRaised(ctx context.Context, opportunityID int64, delta decimal.Decimal) (models.Opportunity, error) {
	o, err := scanOpportunity(t.tx.QueryRowContext(ctx, `
		UPDATE investment_opportunities
		SET amount_raised = GREATEST(amount_raised + $2, 0)
		WHERE id = $1
		RETURNING `+opportunityColumns, opportunityID, delta))
	if err != nil {
		return models.Opportunity{}, classify(err, ledger.ErrOpportunityNotFound)
	}
	return o, nil
}

func (t *tx) CountInvestors(ctx context.Context, opportunityID int64) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM investments
		WHERE opportunity_id = $1 AND status <> 'withdrawn' AND amount_invested > 0`, opportunityID).Scan(&count)
	if err != nil {
		return 0, classify(err, nil)
	}
	return count, nil
}

func (t *tx) SetInvestorCount(ctx context.Context, opportunityID int64, count int) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE investment_opportunities SET investor_count = $2 WHERE id = $1`, opportunityID, count)
	return classify(err, nil)
}

func (t *tx) AppendEntry(ctx context.Context, e models.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(reference, user_id, investment_id, opportunity_id, kind, amount, penalty, wallet_delta, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.Reference, e.UserID, e.InvestmentID, e.OpportunityID, e.Kind,
		e.Amount, e.Penalty, e.WalletDelta, e.Note, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending ledger entry: %w", classify(err, nil))
	}
	return nil
}

func (t *tx) Commit() error {
	return classify(t.tx.Commit(), nil)
}

func (t *tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
