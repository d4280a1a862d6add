package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/atharvakonge/investment-ledger/internal/ledger"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL       string
	Port              string
	GinMode           string
	LogLevel          string
	JWTSecret         string
	PenaltyRate       decimal.Decimal
	PositionPolicy    string
	TopUpMinimum      bool
	LockTimeout       time.Duration
	InitialBalance    decimal.Decimal
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
}

// LoadDotEnv loads .env files into the environment. A missing file is not an error.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		slog.Debug("no .env file loaded, using environment", "error", err)
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:       envOrDefault("DATABASE_URL", databaseURLFromParts()),
		Port:              envOrDefault("PORT", "8080"),
		GinMode:           envOrDefault("GIN_MODE", "debug"),
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		JWTSecret:         envOrDefaultWarn("JWT_SECRET", ""),
		PenaltyRate:       envOrDefaultDecimal("PENALTY_RATE", decimal.RequireFromString("0.05")),
		PositionPolicy:    envOrDefault("POSITION_POLICY", string(ledger.MergePositions)),
		TopUpMinimum:      envOrDefaultBool("TOP_UP_MINIMUM", true),
		LockTimeout:       envOrDefaultDuration("LOCK_TIMEOUT", 5*time.Second),
		InitialBalance:    envOrDefaultDecimal("INITIAL_BALANCE", decimal.RequireFromString("100000.00")),
		DBMaxOpenConns:    envOrDefaultInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    envOrDefaultInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envOrDefaultDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Policy builds the ledger rules from the configured values.
func (c Config) Policy() (ledger.Policy, error) {
	positions, err := ledger.ParsePositionPolicy(c.PositionPolicy)
	if err != nil {
		return ledger.Policy{}, err
	}
	if c.PenaltyRate.IsNegative() || c.PenaltyRate.GreaterThan(decimal.NewFromInt(1)) {
		return ledger.Policy{}, fmt.Errorf("penalty rate %s must be between 0 and 1", c.PenaltyRate)
	}
	return ledger.Policy{
		PenaltyRate:  c.PenaltyRate,
		Positions:    positions,
		TopUpMinimum: c.TopUpMinimum,
	}, nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func databaseURLFromParts() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envOrDefault("DB_HOST", "localhost"),
		envOrDefault("DB_PORT", "5433"),
		envOrDefault("DB_USER", "ledger"),
		envOrDefault("DB_PASSWORD", "ledger123"),
		envOrDefault("DB_NAME", "investment_ledger"),
	)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return b
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envOrDefaultDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			slog.Warn("invalid decimal env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
