// Package memstore is an in-process ledger.Store with row-level locking.
// Writes are buffered per unit and published on Commit.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/ledger"
	"github.com/atharvakonge/investment-ledger/internal/models"
)

// DefaultLockTimeout bounds how long a unit waits for a row lock.
const DefaultLockTimeout = 5 * time.Second

// Store keeps committed rows in memory.
type Store struct {
	mu            sync.RWMutex
	users         map[int64]models.User
	accounts      map[int64]models.Account // by account id
	positions     map[int64]models.Position
	opportunities map[int64]models.Opportunity
	entries       []models.LedgerEntry
	lastID        map[string]int64

	locks       *LockManager
	lockTimeout time.Duration
}

// New creates an empty store.
func New(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{
		users:         make(map[int64]models.User),
		accounts:      make(map[int64]models.Account),
		positions:     make(map[int64]models.Position),
		opportunities: make(map[int64]models.Opportunity),
		lastID:        make(map[string]int64),
		locks:         NewLockManager(),
		lockTimeout:   lockTimeout,
	}
}

// nextID must be called with mu held.
func (s *Store) nextID(table string) int64 {
	s.lastID[table]++
	return s.lastID[table]
}

// AddUser creates a user together with its account.
func (s *Store) AddUser(u models.User, balance decimal.Decimal) (models.User, models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.ID = s.nextID("users")
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.Role == "" {
		u.Role = "investor"
	}
	s.users[u.ID] = u

	acct := models.Account{ID: s.nextID("accounts"), UserID: u.ID, WalletBalance: balance}
	s.accounts[acct.ID] = acct
	return u, acct
}

// AddUserWithoutAccount creates a user that never completed account setup.
func (s *Store) AddUserWithoutAccount(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.ID = s.nextID("users")
	s.users[u.ID] = u
	return u
}

// AddOpportunity stores a campaign as an administrator would.
func (s *Store) AddOpportunity(o models.Opportunity) models.Opportunity {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.ID = s.nextID("opportunities")
	s.opportunities[o.ID] = o
	return o
}

// PutPosition stores a position row as is, bypassing the engine.
func (s *Store) PutPosition(p models.Position) models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		p.ID = s.nextID("positions")
	}
	s.positions[p.ID] = p
	return p
}

// Position returns a committed position.
func (s *Store) Position(id int64) (models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	return p, ok
}

// Opportunity returns a committed opportunity.
func (s *Store) Opportunity(id int64) (models.Opportunity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.opportunities[id]
	return o, ok
}

// Positions returns every committed position ordered by id.
func (s *Store) Positions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps := lo.Values(s.positions)
	slices.SortFunc(ps, func(a, b models.Position) int { return cmp.Compare(a.ID, b.ID) })
	return ps
}

func (s *Store) accountByUser(userID int64) (models.Account, bool) {
	for _, a := range s.accounts {
		if a.UserID == userID {
			return a, true
		}
	}
	return models.Account{}, false
}

func (s *Store) GetUser(_ context.Context, userID int64) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return models.User{}, ledger.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) GetAccount(_ context.Context, userID int64) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accountByUser(userID)
	if !ok {
		return models.Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (s *Store) ListPositions(_ context.Context, userID int64) ([]models.PositionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := lo.Filter(lo.Values(s.positions), func(p models.Position, _ int) bool { return p.UserID == userID })
	slices.SortFunc(owned, func(a, b models.Position) int { return cmp.Compare(a.ID, b.ID) })
	return lo.Map(owned, func(p models.Position, _ int) models.PositionView {
		return models.PositionView{Position: p, Opportunity: s.opportunities[p.OpportunityID]}
	}), nil
}

func (s *Store) ListOpportunities(_ context.Context) ([]models.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opps := lo.Values(s.opportunities)
	slices.SortFunc(opps, func(a, b models.Opportunity) int { return cmp.Compare(a.ID, b.ID) })
	return opps, nil
}

func (s *Store) ListEntries(_ context.Context, userID int64, limit int) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.LedgerEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// Begin opens a unit of work.
func (s *Store) Begin(_ context.Context) (ledger.Tx, error) {
	return &tx{
		s:             s,
		held:          make(map[string]bool),
		accounts:      make(map[int64]models.Account),
		positions:     make(map[int64]models.Position),
		opportunities: make(map[int64]models.Opportunity),
	}, nil
}

type tx struct {
	s    *Store
	held map[string]bool
	done bool

	// uncommitted writes
	accounts      map[int64]models.Account
	positions     map[int64]models.Position
	opportunities map[int64]models.Opportunity
	entries       []models.LedgerEntry
}

func (t *tx) lock(ctx context.Context, key string) error {
	if t.done {
		return fmt.Errorf("memstore: transaction already finished")
	}
	if t.held[key] {
		return nil
	}
	if !t.s.locks.Lock(ctx, key, t.s.lockTimeout) {
		return fmt.Errorf("%w: timed out waiting for %s", ledger.ErrConflict, key)
	}
	t.held[key] = true
	return nil
}

func (t *tx) release() {
	for key := range t.held {
		t.s.locks.Unlock(key)
	}
	t.held = nil
	t.done = true
}

func (t *tx) position(id int64) (models.Position, bool) {
	if p, ok := t.positions[id]; ok {
		return p, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	p, ok := t.s.positions[id]
	return p, ok
}

func (t *tx) opportunity(id int64) (models.Opportunity, bool) {
	if o, ok := t.opportunities[id]; ok {
		return o, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	o, ok := t.s.opportunities[id]
	return o, ok
}

// visiblePositions merges committed rows with this unit's writes.
func (t *tx) visiblePositions() []models.Position {
	t.s.mu.RLock()
	merged := make(map[int64]models.Position, len(t.s.positions))
	for id, p := range t.s.positions {
		merged[id] = p
	}
	t.s.mu.RUnlock()
	for id, p := range t.positions {
		merged[id] = p
	}
	return lo.Values(merged)
}

func (t *tx) FindUser(_ context.Context, identifier string) (models.User, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, u := range t.s.users {
		if strings.EqualFold(u.Email, identifier) || u.Username == identifier {
			return u, nil
		}
	}
	return models.User{}, ledger.ErrUserNotFound
}

func (t *tx) LockAccount(ctx context.Context, userID int64) (models.Account, error) {
	if err := t.lock(ctx, fmt.Sprintf("account:user:%d", userID)); err != nil {
		return models.Account{}, err
	}
	for _, a := range t.accounts {
		if a.UserID == userID {
			return a, nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.accountByUser(userID)
	if !ok {
		return models.Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (t *tx) LockPosition(ctx context.Context, positionID, userID int64) (models.Position, error) {
	if err := t.lock(ctx, fmt.Sprintf("position:%d", positionID)); err != nil {
		return models.Position{}, err
	}
	p, ok := t.position(positionID)
	if !ok || p.UserID != userID {
		return models.Position{}, ledger.ErrPositionNotFound
	}
	return p, nil
}

func (t *tx) LockActivePosition(ctx context.Context, userID, opportunityID int64) (models.Position, bool, error) {
	matches := lo.Filter(t.visiblePositions(), func(p models.Position, _ int) bool {
		return p.UserID == userID && p.OpportunityID == opportunityID && p.Status == models.StatusActive
	})
	if len(matches) == 0 {
		return models.Position{}, false, nil
	}
	target := lo.MinBy(matches, func(a, b models.Position) bool { return a.ID < b.ID })

	if err := t.lock(ctx, fmt.Sprintf("position:%d", target.ID)); err != nil {
		return models.Position{}, false, err
	}
	p, _ := t.position(target.ID)
	if p.UserID != userID || p.Status != models.StatusActive {
		return models.Position{}, false, nil
	}
	return p, true, nil
}

func (t *tx) LockOpportunity(ctx context.Context, opportunityID int64) (models.Opportunity, error) {
	if err := t.lock(ctx, fmt.Sprintf("opportunity:%d", opportunityID)); err != nil {
		return models.Opportunity{}, err
	}
	o, ok := t.opportunity(opportunityID)
	if !ok {
		return models.Opportunity{}, ledger.ErrOpportunityNotFound
	}
	return o, nil
}

func (t *tx) SetWalletBalance(_ context.Context, accountID int64, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("memstore: wallet balance of account %d would be negative", accountID)
	}
	a, ok := t.accounts[accountID]
	if !ok {
		t.s.mu.RLock()
		a, ok = t.s.accounts[accountID]
		t.s.mu.RUnlock()
	}
	if !ok {
		return ledger.ErrAccountNotFound
	}
	a.WalletBalance = balance
	t.accounts[accountID] = a
	return nil
}

func (t *tx) InsertPosition(ctx context.Context, p models.Position) (models.Position, error) {
	t.s.mu.Lock()
	p.ID = t.s.nextID("positions")
	t.s.mu.Unlock()

	if err := t.lock(ctx, fmt.Sprintf("position:%d", p.ID)); err != nil {
		return models.Position{}, err
	}
	t.positions[p.ID] = p
	return p, nil
}

func (t *tx) UpdatePosition(_ context.Context, p models.Position) error {
	if _, ok := t.position(p.ID); !ok {
		return ledger.ErrPositionNotFound
	}
	t.positions[p.ID] = p
	return nil
}

func (t *tx) AddAmountRaised(_ context.Context, opportunityID int64, delta decimal.Decimal) (models.Opportunity, error) {
	o, ok := t.opportunity(opportunityID)
	if !ok {
		return models.Opportunity{}, ledger.ErrOpportunityNotFound
	}
	o.AmountRaised = decimal.Max(o.AmountRaised.Add(delta), decimal.Zero)
	t.opportunities[opportunityID] = o
	return o, nil
}

func (t *tx) CountInvestors(_ context.Context, opportunityID int64) (int, error) {
	funded := lo.Filter(t.visiblePositions(), func(p models.Position, _ int) bool {
		return p.OpportunityID == opportunityID && p.Status != models.StatusWithdrawn && p.AmountInvested.IsPositive()
	})
	investors := lo.Uniq(lo.Map(funded, func(p models.Position, _ int) int64 { return p.UserID }))
	return len(investors), nil
}

func (t *tx) SetInvestorCount(_ context.Context, opportunityID int64, count int) error {
	o, ok := t.opportunity(opportunityID)
	if !ok {
		return ledger.ErrOpportunityNotFound
	}
	o.InvestorCount = count
	t.opportunities[opportunityID] = o
	return nil
}

func (t *tx) AppendEntry(_ context.Context, e models.LedgerEntry) error {
	t.entries = append(t.entries, e)
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return fmt.Errorf("memstore: transaction already finished")
	}
	defer t.release()

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, a := range t.accounts {
		t.s.accounts[id] = a
	}
	for id, p := range t.positions {
		t.s.positions[id] = p
	}
	for id, o := range t.opportunities {
		t.s.opportunities[id] = o
	}
	for _, e := range t.entries {
		e.ID = t.s.nextID("ledger_entries")
		t.s.entries = append(t.s.entries, e)
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}
