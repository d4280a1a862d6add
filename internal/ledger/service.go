package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/models"
	"github.com/atharvakonge/investment-ledger/internal/money"
)

// Service runs the money-moving operations. Every operation is one atomic
// unit that locks account rows, then position rows, then the opportunity row.
type Service struct {
	store    Store
	policy   Policy
	notifier Notifier
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier registers a post-commit listener for opportunity changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a ledger service over store.
func NewService(store Store, policy Policy, opts ...Option) *Service {
	s := &Service{store: store, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the rules the service applies.
func (s *Service) Policy() Policy { return s.policy }

type SubscribeRequest struct {
	UserID        int64
	OpportunityID int64
	Amount        decimal.Decimal
}

type TopUpRequest struct {
	UserID       int64
	InvestmentID int64
	Amount       decimal.Decimal
}

type WithdrawRequest struct {
	UserID       int64
	InvestmentID int64
	Amount       decimal.Decimal
	Reason       string
}

type TransferRequest struct {
	UserID       int64
	InvestmentID int64
	Recipient    string // email or username
	Amount       decimal.Decimal
	Note         string
}

type ExitRequest struct {
	UserID       int64
	InvestmentID int64
	Reason       string
}

type DepositRequest struct {
	UserID int64
	Amount decimal.Decimal
}

// PositionResult is returned by subscribe and top-up.
type PositionResult struct {
	Position      models.Position
	Opportunity   models.Opportunity
	WalletBalance decimal.Decimal
}

// WithdrawResult is returned by withdraw and exit.
type WithdrawResult struct {
	Withdrawn     decimal.Decimal
	Returned      decimal.Decimal
	Penalty       decimal.Decimal
	Remaining     decimal.Decimal
	Status        models.Status
	WalletBalance decimal.Decimal
	Opportunity   models.Opportunity
}

type TransferResult struct {
	InvestmentID        int64
	OpportunityID       int64
	Transferred         decimal.Decimal
	Remaining           decimal.Decimal
	RecipientAccountID  int64
	RecipientPositionID int64
	Opportunity         models.Opportunity
}

type DepositResult struct {
	Reference     string
	Amount        decimal.Decimal
	WalletBalance decimal.Decimal
	CreatedAt     time.Time
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(money.Round(amount)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, money.Precision)
	}
	return nil
}

// inTx runs fn in one atomic unit. Any error rolls the whole unit back.
func (s *Service) inTx(ctx context.Context, op string, fn func(tx Tx) error) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if IsRetryable(err) {
			slog.WarnContext(ctx, "ledger operation aborted by conflict", "op", op, "error", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func (s *Service) notify(opp models.Opportunity) {
	if s.notifier != nil {
		s.notifier.OpportunityChanged(opp)
	}
}

func (s *Service) entry(userID int64, kind models.EntryKind, pos *models.Position) models.LedgerEntry {
	e := models.LedgerEntry{
		Reference:   uuid.NewString(),
		UserID:      userID,
		Kind:        kind,
		Penalty:     decimal.Zero,
		WalletDelta: decimal.Zero,
		CreatedAt:   s.now(),
	}
	if pos != nil {
		id, oppID := pos.ID, pos.OpportunityID
		e.InvestmentID = &id
		e.OpportunityID = &oppID
	}
	return e
}

func checkMinimum(amount decimal.Decimal, opp models.Opportunity) error {
	if amount.LessThan(opp.MinInvestment) {
		return fmt.Errorf("%w: minimum investment is %s", ErrBelowMinimum, opp.MinInvestment.StringFixed(2))
	}
	return nil
}

func checkFunds(acct models.Account, amount decimal.Decimal) error {
	if acct.WalletBalance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// Subscribe moves amount from the wallet into the user's position on an
// opportunity, creating the position or merging into the active one.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) (PositionResult, error) {
	if req.OpportunityID == 0 {
		return PositionResult{}, fmt.Errorf("%w: opportunity_id", ErrMissingField)
	}
	if err := validAmount(req.Amount); err != nil {
		return PositionResult{}, err
	}

	var res PositionResult
	err := s.inTx(ctx, "subscribe", func(tx Tx) error {
		acct, err := tx.LockAccount(ctx, req.UserID)
		if err != nil {
			return err
		}

		var pos models.Position
		found := false
		if s.policy.Positions == MergePositions {
			pos, found, err = tx.LockActivePosition(ctx, req.UserID, req.OpportunityID)
			if err != nil {
				return err
			}
		}

		opp, err := tx.LockOpportunity(ctx, req.OpportunityID)
		if err != nil {
			return err
		}
		if !found || s.policy.TopUpMinimum {
			if err := checkMinimum(req.Amount, opp); err != nil {
				return err
			}
		}
		if err := checkFunds(acct, req.Amount); err != nil {
			return err
		}

		if found {
			if pos, err = topUp(pos, req.Amount); err != nil {
				return err
			}
			if err := tx.UpdatePosition(ctx, pos); err != nil {
				return err
			}
		} else {
			pos, err = tx.InsertPosition(ctx, models.Position{
				UserID:         req.UserID,
				OpportunityID:  opp.ID,
				AmountInvested: req.Amount,
				ExpectedReturn: opp.ExpectedReturn,
				Status:         models.StatusActive,
				InvestmentDate: s.now(),
			})
			if err != nil {
				return err
			}
		}

		balance := acct.WalletBalance.Sub(req.Amount)
		if err := tx.SetWalletBalance(ctx, acct.ID, balance); err != nil {
			return err
		}

		if opp, err = Adjust(ctx, tx, opp.ID, req.Amount); err != nil {
			return err
		}

		e := s.entry(req.UserID, models.EntrySubscribe, &pos)
		e.Amount = req.Amount
		e.WalletDelta = req.Amount.Neg()
		if err := tx.AppendEntry(ctx, e); err != nil {
			return err
		}

		res = PositionResult{Position: pos, Opportunity: opp, WalletBalance: balance}
		return nil
	})
	if err != nil {
		return PositionResult{}, err
	}

	slog.InfoContext(ctx, "subscribed", "user_id", req.UserID, "investment_id", res.Position.ID,
		"opportunity_id", req.OpportunityID, "amount", req.Amount.StringFixed(2))
	s.notify(res.Opportunity)
	return res, nil
}

// TopUp adds amount from the wallet to an existing active position.
func (s *Service) TopUp(ctx context.Context, req TopUpRequest) (PositionResult, error) {
	if req.InvestmentID == 0 {
		return PositionResult{}, fmt.Errorf("%w: investment_id", ErrMissingField)
	}
	if err := validAmount(req.Amount); err != nil {
		return PositionResult{}, err
	}

	var res PositionResult
	err := s.inTx(ctx, "top-up", func(tx Tx) error {
		acct, err := tx.LockAccount(ctx, req.UserID)
		if err != nil {
			return err
		}
		pos, err := tx.LockPosition(ctx, req.InvestmentID, req.UserID)
		if err != nil {
			return err
		}
		opp, err := tx.LockOpportunity(ctx, pos.OpportunityID)
		if err != nil {
			return err
		}

		if s.policy.TopUpMinimum {
			if err := checkMinimum(req.Amount, opp); err != nil {
				return err
			}
		}
		if err := checkFunds(acct, req.Amount); err != nil {
			return err
		}
		if pos, err = topUp(pos, req.Amount); err != nil {
			return err
		}

		balance := acct.WalletBalance.Sub(req.Amount)
		if err := tx.SetWalletBalance(ctx, acct.ID, balance); err != nil {
			return err
		}
		if err := tx.UpdatePosition(ctx, pos); err != nil {
			return err
		}
		if opp, err = Adjust(ctx, tx, opp.ID, req.Amount); err != nil {
			return err
		}

		e := s.entry(req.UserID, models.EntryTopUp, &pos)
		e.Amount = req.Amount
		e.WalletDelta = req.Amount.Neg()
		if err := tx.AppendEntry(ctx, e); err != nil {
			return err
		}

		res = PositionResult{Position: pos, Opportunity: opp, WalletBalance: balance}
		return nil
	})
	if err != nil {
		return PositionResult{}, err
	}

	slog.InfoContext(ctx, "topped up", "user_id", req.UserID, "investment_id", req.InvestmentID,
		"amount", req.Amount.StringFixed(2))
	s.notify(res.Opportunity)
	return res, nil
}

// Withdraw takes part or all of a position back to the wallet. Active
// positions pay the penalty; completed positions are paid out in full.
func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (WithdrawResult, error) {
	if req.InvestmentID == 0 {
		return WithdrawResult{}, fmt.Errorf("%w: investment_id", ErrMissingField)
	}
	if err := validAmount(req.Amount); err != nil {
		return WithdrawResult{}, err
	}

	var res WithdrawResult
	err := s.inTx(ctx, "withdraw", func(tx Tx) error {
		acct, err := tx.LockAccount(ctx, req.UserID)
		if err != nil {
			return err
		}
		pos, err := tx.LockPosition(ctx, req.InvestmentID, req.UserID)
		if err != nil {
			return err
		}
		opp, err := tx.LockOpportunity(ctx, pos.OpportunityID)
		if err != nil {
			return err
		}

		next, penalized, err := withdraw(pos, req.Amount, opp.MinInvestment)
		if err != nil {
			return err
		}

		returned, penalty := req.Amount, decimal.Zero
		if penalized {
			returned, penalty = s.policy.Payout(req.Amount)
		}

		if err := tx.UpdatePosition(ctx, next); err != nil {
			return err
		}
		if opp, err = Adjust(ctx, tx, opp.ID, req.Amount.Neg()); err != nil {
			return err
		}
		balance := acct.WalletBalance.Add(returned)
		if err := tx.SetWalletBalance(ctx, acct.ID, balance); err != nil {
			return err
		}

		e := s.entry(req.UserID, models.EntryWithdraw, &next)
		e.Amount = req.Amount
		e.Penalty = penalty
		e.WalletDelta = returned
		e.Note = req.Reason
		if err := tx.AppendEntry(ctx, e); err != nil {
			return err
		}

		res = WithdrawResult{
			Withdrawn:     req.Amount,
			Returned:      returned,
			Penalty:       penalty,
			Remaining:     next.AmountInvested,
			Status:        next.Status,
			WalletBalance: balance,
			Opportunity:   opp,
		}
		return nil
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	slog.InfoContext(ctx, "withdrew", "user_id", req.UserID, "investment_id", req.InvestmentID,
		"amount", req.Amount.StringFixed(2), "penalty", res.Penalty.StringFixed(2), "status", res.Status)
	s.notify(res.Opportunity)
	return res, nil
}

// Exit withdraws an active position in full.
func (s *Service) Exit(ctx context.Context, req ExitRequest) (WithdrawResult, error) {
	if req.InvestmentID == 0 {
		return WithdrawResult{}, fmt.Errorf("%w: investment_id", ErrMissingField)
	}

	var res WithdrawResult
	err := s.inTx(ctx, "exit", func(tx Tx) error {
		acct, err := tx.LockAccount(ctx, req.UserID)
		if err != nil {
			return err
		}
		pos, err := tx.LockPosition(ctx, req.InvestmentID, req.UserID)
		if err != nil {
			return err
		}
		opp, err := tx.LockOpportunity(ctx, pos.OpportunityID)
		if err != nil {
			return err
		}

		amount := pos.AmountInvested
		next, err := exit(pos)
		if err != nil {
			return err
		}
		returned, penalty := s.policy.Payout(amount)

		if err := tx.UpdatePosition(ctx, next); err != nil {
			return err
		}
		if opp, err = Adjust(ctx, tx, opp.ID, amount.Neg()); err != nil {
			return err
		}
		balance := acct.WalletBalance.Add(returned)
		if err := tx.SetWalletBalance(ctx, acct.ID, balance); err != nil {
			return err
		}

		e := s.entry(req.UserID, models.EntryExit, &next)
		e.Amount = amount
		e.Penalty = penalty
		e.WalletDelta = returned
		e.Note = req.Reason
		if err := tx.AppendEntry(ctx, e); err != nil {
			return err
		}

		res = WithdrawResult{
			Withdrawn:     amount,
			Returned:      returned,
			Penalty:       penalty,
			Remaining:     decimal.Zero,
			Status:        next.Status,
			WalletBalance: balance,
			Opportunity:   opp,
		}
		return nil
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	slog.InfoContext(ctx, "exited", "user_id", req.UserID, "investment_id", req.InvestmentID,
		"amount", res.Withdrawn.StringFixed(2))
	s.notify(res.Opportunity)
	return res, nil
}

// Transfer hands amount of a position to another user. No money leaves the
// opportunity, so its raised total is unchanged.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if req.InvestmentID == 0 {
		return TransferResult{}, fmt.Errorf("%w: investment_id", ErrMissingField)
	}
	if req.Recipient == "" {
		return TransferResult{}, fmt.Errorf("%w: recipient", ErrMissingField)
	}
	if err := validAmount(req.Amount); err != nil {
		return TransferResult{}, err
	}

	var res TransferResult
	err := s.inTx(ctx, "transfer", func(tx Tx) error {
		recipient, err := tx.FindUser(ctx, req.Recipient)
		if errors.Is(err, ErrUserNotFound) {
			return ErrRecipientNotFound
		}
		if err != nil {
			return err
		}
		if recipient.ID == req.UserID {
			return ErrSelfTransfer
		}

		// Accounts lock in user-id order so opposing transfers cannot deadlock.
		ids := []int64{req.UserID, recipient.ID}
		if recipient.ID < req.UserID {
			ids[0], ids[1] = ids[1], ids[0]
		}
		var recipientAcct models.Account
		for _, id := range ids {
			acct, err := tx.LockAccount(ctx, id)
			if id == recipient.ID {
				if errors.Is(err, ErrAccountNotFound) {
					return ErrRecipientNoAccount
				}
				recipientAcct = acct
			}
			if err != nil {
				return err
			}
		}

		pos, err := tx.LockPosition(ctx, req.InvestmentID, req.UserID)
		if err != nil {
			return err
		}
		if pos.Status != models.StatusActive && pos.Status != models.StatusCompleted {
			return invalidStatus(pos, "transfer")
		}
		var target models.Position
		found := false
		if s.policy.Positions == MergePositions {
			target, found, err = tx.LockActivePosition(ctx, recipient.ID, pos.OpportunityID)
			if err != nil {
				return err
			}
		}
		opp, err := tx.LockOpportunity(ctx, pos.OpportunityID)
		if err != nil {
			return err
		}

		if req.Amount.Equal(pos.AmountInvested) && !found {
			// The whole row changes hands.
			pos.UserID = recipient.ID
			pos.Status = models.StatusActive
			if err := tx.UpdatePosition(ctx, pos); err != nil {
				return err
			}
			target = pos
			res.Remaining = decimal.Zero
		} else {
			sender, err := transferOut(pos, req.Amount, opp.MinInvestment)
			if err != nil {
				return err
			}
			if found {
				target.AmountInvested = target.AmountInvested.Add(req.Amount)
			} else {
				if err := checkMinimum(req.Amount, opp); err != nil {
					return err
				}
				target = models.Position{
					UserID:         recipient.ID,
					OpportunityID:  pos.OpportunityID,
					AmountInvested: req.Amount,
					ExpectedReturn: pos.ExpectedReturn,
					Status:         models.StatusActive,
					InvestmentDate: s.now(),
				}
			}

			if err := tx.UpdatePosition(ctx, sender); err != nil {
				return err
			}
			if found {
				err = tx.UpdatePosition(ctx, target)
			} else {
				target, err = tx.InsertPosition(ctx, target)
			}
			if err != nil {
				return err
			}
			res.Remaining = sender.AmountInvested
		}

		if opp, err = Adjust(ctx, tx, opp.ID, decimal.Zero); err != nil {
			return err
		}

		out := s.entry(req.UserID, models.EntryTransferOut, &pos)
		out.Amount = req.Amount
		out.Note = req.Note
		in := s.entry(recipient.ID, models.EntryTransferIn, &target)
		in.Amount = req.Amount
		in.Note = req.Note
		in.Reference = out.Reference
		if err := tx.AppendEntry(ctx, out); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, in); err != nil {
			return err
		}

		res.InvestmentID = req.InvestmentID
		res.OpportunityID = pos.OpportunityID
		res.Transferred = req.Amount
		res.RecipientAccountID = recipientAcct.ID
		res.RecipientPositionID = target.ID
		res.Opportunity = opp
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	slog.InfoContext(ctx, "transferred", "user_id", req.UserID, "investment_id", req.InvestmentID,
		"recipient_account_id", res.RecipientAccountID, "amount", req.Amount.StringFixed(2))
	s.notify(res.Opportunity)
	return res, nil
}

// Deposit credits the wallet. No settlement happens here.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (DepositResult, error) {
	if err := validAmount(req.Amount); err != nil {
		return DepositResult{}, err
	}

	var res DepositResult
	err := s.inTx(ctx, "deposit", func(tx Tx) error {
		acct, err := tx.LockAccount(ctx, req.UserID)
		if err != nil {
			return err
		}
		balance := acct.WalletBalance.Add(req.Amount)
		if err := tx.SetWalletBalance(ctx, acct.ID, balance); err != nil {
			return err
		}

		e := s.entry(req.UserID, models.EntryDeposit, nil)
		e.Amount = req.Amount
		e.WalletDelta = req.Amount
		if err := tx.AppendEntry(ctx, e); err != nil {
			return err
		}

		res = DepositResult{Reference: e.Reference, Amount: req.Amount, WalletBalance: balance, CreatedAt: e.CreatedAt}
		return nil
	})
	if err != nil {
		return DepositResult{}, err
	}

	slog.InfoContext(ctx, "deposited", "user_id", req.UserID, "amount", req.Amount.StringFixed(2))
	return res, nil
}
