package ledger

import "errors"

// Kind classifies ledger failures for the transport layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindInvariant
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvariant:
		return "invariant_violation"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a classified ledger failure. Instances are sentinels: wrap them with
// fmt.Errorf("%w: ...") to add detail and match them with errors.Is.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrInvalidAmount = newError(KindValidation, "invalid_amount", "invalid amount provided")
	ErrMissingField  = newError(KindValidation, "missing_field", "missing required field")

	ErrAccountNotFound     = newError(KindNotFound, "account_not_found", "account not found for user")
	ErrOpportunityNotFound = newError(KindNotFound, "opportunity_not_found", "investment opportunity not found")
	ErrPositionNotFound    = newError(KindNotFound, "position_not_found", "investment not found")
	ErrRecipientNotFound   = newError(KindNotFound, "recipient_not_found", "recipient not found")
	ErrRecipientNoAccount  = newError(KindNotFound, "recipient_not_found", "recipient does not have an investment account")
	ErrUserNotFound        = newError(KindNotFound, "user_not_found", "user not found")

	ErrInsufficientFunds     = newError(KindInvariant, "insufficient_funds", "insufficient wallet balance")
	ErrBelowMinimum          = newError(KindInvariant, "below_minimum", "amount is below the minimum investment")
	ErrBelowMinimumRemainder = newError(KindInvariant, "below_minimum_remainder", "remaining investment would fall below the minimum; keep at least the minimum or withdraw everything")
	ErrExceedsPosition       = newError(KindInvariant, "exceeds_position", "amount exceeds invested amount")
	ErrInvalidStatus         = newError(KindInvariant, "invalid_status", "operation not allowed for investment status")
	ErrSelfTransfer          = newError(KindInvariant, "self_transfer", "cannot transfer investment to yourself")
	ErrNothingToWithdraw     = newError(KindInvariant, "nothing_to_withdraw", "nothing to withdraw from this investment")
	ErrCompletedPartial      = newError(KindInvariant, "completed_partial", "completed investments must be fully withdrawn")

	// ErrConflict marks a transient store failure (lock wait timeout, deadlock,
	// serialization failure). Nothing was applied; the caller may retry.
	ErrConflict = newError(KindConflict, "conflict", "the ledger is busy, please retry")
)

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient conflict.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConflict
}
