package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvakonge/investment-ledger/internal/ledger"
)

var configKeys = []string{
	"DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
	"PORT", "GIN_MODE", "LOG_LEVEL", "JWT_SECRET", "PENALTY_RATE", "POSITION_POLICY",
	"TOP_UP_MINIMUM", "LOCK_TIMEOUT", "INITIAL_BALANCE",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	assert.Equal(t, "host=localhost port=5433 user=ledger password=ledger123 dbname=investment_ledger sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.JWTSecret)
	assert.Equal(t, "0.05", cfg.PenaltyRate.String())
	assert.Equal(t, "merge", cfg.PositionPolicy)
	assert.True(t, cfg.TopUpMinimum)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, "100000", cfg.InitialBalance.String())
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.Equal(t, 5, cfg.DBMaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/ledger_test")
	t.Setenv("PORT", "9090")
	t.Setenv("PENALTY_RATE", "0.1")
	t.Setenv("POSITION_POLICY", "append")
	t.Setenv("TOP_UP_MINIMUM", "false")
	t.Setenv("LOCK_TIMEOUT", "250ms")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")

	cfg := Load()

	assert.Equal(t, "postgres://localhost/ledger_test", cfg.DatabaseURL)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "0.1", cfg.PenaltyRate.String())
	assert.False(t, cfg.TopUpMinimum)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, 50, cfg.DBMaxOpenConns)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, ledger.AppendPositions, policy.Positions)
	assert.False(t, policy.TopUpMinimum)
}

func TestLoadInvalidEnvFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("LOCK_TIMEOUT", "invalid-duration")
	t.Setenv("PENALTY_RATE", "five percent")
	t.Setenv("TOP_UP_MINIMUM", "sometimes")

	cfg := Load()

	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, "0.05", cfg.PenaltyRate.String())
	assert.True(t, cfg.TopUpMinimum)
}

func TestPolicyRejectsBadValues(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	cfg.PositionPolicy = "stack"
	_, err := cfg.Policy()
	assert.Error(t, err)

	t.Setenv("PENALTY_RATE", "1.5")
	cfg = Load()
	_, err = cfg.Policy()
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Config{LogLevel: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Config{LogLevel: "WARN"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "chatty"}.SlogLevel())
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=7070\nJWT_SECRET=dotenv-secret\n"), 0o600))

	LoadDotEnv(path)
	t.Cleanup(func() {
		os.Unsetenv("PORT")
		os.Unsetenv("JWT_SECRET")
	})

	cfg := Load()
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "dotenv-secret", cfg.JWTSecret)

	LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
}
