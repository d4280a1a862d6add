package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvakonge/investment-ledger/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pos(amount string, status models.Status) models.Position {
	return models.Position{ID: 1, UserID: 1, OpportunityID: 1, AmountInvested: d(amount), Status: status}
}

func TestWithdrawTransitions(t *testing.T) {
	tests := []struct {
		name          string
		position      models.Position
		amount        string
		wantAmount    string
		wantStatus    models.Status
		wantPenalized bool
		wantErr       error
	}{
		{name: "partial stays active", position: pos("1500", models.StatusActive), amount: "500", wantAmount: "1000", wantStatus: models.StatusActive, wantPenalized: true},
		{name: "full becomes withdrawn", position: pos("1500", models.StatusActive), amount: "1500", wantAmount: "0", wantStatus: models.StatusWithdrawn, wantPenalized: true},
		{name: "remainder below minimum", position: pos("1500", models.StatusActive), amount: "500.01", wantErr: ErrBelowMinimumRemainder},
		{name: "exceeds position", position: pos("1500", models.StatusActive), amount: "1500.01", wantErr: ErrExceedsPosition},
		{name: "completed full without penalty", position: pos("2000", models.StatusCompleted), amount: "2000", wantAmount: "0", wantStatus: models.StatusWithdrawn},
		{name: "completed partial rejected", position: pos("2000", models.StatusCompleted), amount: "1000", wantErr: ErrCompletedPartial},
		{name: "withdrawn rejected", position: pos("0", models.StatusWithdrawn), amount: "1", wantErr: ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, penalized, err := withdraw(tt.position, d(tt.amount), d("1000"))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.position, next, "failed transition must not change the position")
				return
			}
			require.NoError(t, err)
			assert.True(t, next.AmountInvested.Equal(d(tt.wantAmount)), "amount = %s, want %s", next.AmountInvested, tt.wantAmount)
			assert.Equal(t, tt.wantStatus, next.Status)
			assert.Equal(t, tt.wantPenalized, penalized)
		})
	}
}

func TestTopUpRequiresActive(t *testing.T) {
	next, err := topUp(pos("1000", models.StatusActive), d("250"))
	require.NoError(t, err)
	assert.True(t, next.AmountInvested.Equal(d("1250")))

	for _, status := range []models.Status{models.StatusWithdrawn, models.StatusCompleted} {
		_, err := topUp(pos("1000", status), d("250"))
		assert.ErrorIs(t, err, ErrInvalidStatus, "status %s", status)
	}
}

func TestExitTransitions(t *testing.T) {
	next, err := exit(pos("1200", models.StatusActive))
	require.NoError(t, err)
	assert.True(t, next.AmountInvested.IsZero())
	assert.Equal(t, models.StatusWithdrawn, next.Status)

	_, err = exit(pos("1200", models.StatusCompleted))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = exit(pos("0", models.StatusActive))
	assert.ErrorIs(t, err, ErrNothingToWithdraw)
}

func TestTransferOut(t *testing.T) {
	next, err := transferOut(pos("3000", models.StatusCompleted), d("1000"), d("1000"))
	require.NoError(t, err)
	assert.True(t, next.AmountInvested.Equal(d("2000")))
	assert.Equal(t, models.StatusCompleted, next.Status)

	next, err = transferOut(pos("3000", models.StatusActive), d("3000"), d("1000"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusWithdrawn, next.Status)

	_, err = transferOut(pos("3000", models.StatusActive), d("2500"), d("1000"))
	assert.ErrorIs(t, err, ErrBelowMinimumRemainder)

	_, err = transferOut(pos("0", models.StatusWithdrawn), d("1"), d("1000"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(ErrInvalidAmount))
	assert.Equal(t, KindNotFound, KindOf(ErrRecipientNoAccount))
	assert.Equal(t, KindInvariant, KindOf(checkHolding(d("999.99"), d("1000"))))
	assert.Equal(t, KindConflict, KindOf(ErrConflict))
	assert.True(t, IsRetryable(ErrConflict))
	assert.Equal(t, KindUnknown, KindOf(assert.AnError))
}

func TestPolicyPayout(t *testing.T) {
	returned, penalty := DefaultPolicy().Payout(d("1500"))
	assert.True(t, returned.Equal(d("1425")), "returned = %s", returned)
	assert.True(t, penalty.Equal(d("75")), "penalty = %s", penalty)

	returned, penalty = Policy{PenaltyRate: decimal.Zero}.Payout(d("10.01"))
	assert.True(t, returned.Equal(d("10.01")))
	assert.True(t, penalty.IsZero())
}
