package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/atharvakonge/investment-ledger/internal/ledger"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound error
		want     error
	}{
		{"no rows", sql.ErrNoRows, ledger.ErrPositionNotFound, ledger.ErrPositionNotFound},
		{"lock timeout", &pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"}, nil, ledger.ErrConflict},
		{"deadlock", fmt.Errorf("update: %w", &pq.Error{Code: "40P01"}), nil, ledger.ErrConflict},
		{"serialization", &pq.Error{Code: "40001"}, nil, ledger.ErrConflict},
		{"deadline", context.DeadlineExceeded, nil, ledger.ErrConflict},
		{"wallet check", &pq.Error{Code: "23514", Constraint: "accounts_wallet_balance_check"}, nil, ledger.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err, tt.notFound), tt.want)
		})
	}

	other := &pq.Error{Code: "23505"}
	assert.Equal(t, error(other), classify(other, nil))
	assert.NoError(t, classify(nil, ledger.ErrUserNotFound))
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(Migrations(), "*.up.sql")
	assert.NoError(t, err)
	assert.Contains(t, files, "001_init.up.sql")
}
