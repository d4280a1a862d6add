package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/atharvakonge/investment-ledger/internal/auth"
	"github.com/atharvakonge/investment-ledger/internal/config"
	"github.com/atharvakonge/investment-ledger/internal/db"
	"github.com/atharvakonge/investment-ledger/internal/handlers"
	"github.com/atharvakonge/investment-ledger/internal/ledger"
	"github.com/atharvakonge/investment-ledger/internal/memstore"
	"github.com/atharvakonge/investment-ledger/internal/models"
)

var demoUsers = []models.User{
	{Username: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Hart"},
	{Username: "bob", Email: "bob@example.com", FirstName: "Bob", LastName: "Reyes"},
}

func main() {
	var cfg config.Config

	app := &cli.App{
		Name:  "ledger",
		Usage: "investment ledger API",
		Before: func(c *cli.Context) error {
			config.LoadDotEnv()
			cfg = config.Load()
			setupLogging(cfg)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "store", Value: "postgres", Usage: "ledger store: postgres or memory"},
					&cli.StringFlag{Name: "port", Usage: "listen port (overrides PORT)"},
				},
				Action: func(c *cli.Context) error {
					if port := c.String("port"); port != "" {
						cfg.Port = port
					}
					return serve(c.Context, cfg, c.String("store"))
				},
			},
			{
				Name:  "migrate",
				Usage: "apply pending database migrations",
				Action: func(c *cli.Context) error {
					conn, err := openDB(c.Context, cfg)
					if err != nil {
						return err
					}
					defer conn.Close()
					_, err = db.RunMigrations(c.Context, conn, db.Migrations())
					return err
				},
			},
			{
				Name:  "seed",
				Usage: "load the sample opportunity catalogue",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "demo-users", Usage: "also create demo users with funded wallets"},
				},
				Action: func(c *cli.Context) error {
					conn, err := openDB(c.Context, cfg)
					if err != nil {
						return err
					}
					defer conn.Close()

					n, err := db.SeedOpportunities(c.Context, conn, db.SampleOpportunities())
					if err != nil {
						return err
					}
					slog.Info("opportunities seeded", "inserted", n)

					if !c.Bool("demo-users") {
						return nil
					}
					for _, u := range demoUsers {
						created, acct, err := db.CreateUser(c.Context, conn, u, cfg.InitialBalance)
						if err != nil {
							return err
						}
						slog.Info("demo user created", "user_id", created.ID, "username", created.Username,
							"account_id", acct.ID, "wallet_balance", acct.WalletBalance.StringFixed(2))
					}
					return nil
				},
			},
			{
				Name:  "token",
				Usage: "print a bearer token for a user",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "user", Required: true, Usage: "user id"},
					&cli.StringFlag{Name: "username"},
					&cli.StringFlag{Name: "email"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: func(c *cli.Context) error {
					verifier, err := auth.NewVerifier(cfg.JWTSecret)
					if err != nil {
						return err
					}
					tok, err := verifier.Issue(c.Int64("user"), c.String("username"), c.String("email"), c.Duration("ttl"))
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, tok)
					return nil
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func setupLogging(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.GinMode == gin.ReleaseMode {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handlers.ContextHandler{Handler: h}))
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	return db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
}

func serve(ctx context.Context, cfg config.Config, storeKind string) error {
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return err
	}

	var store ledger.Store
	switch storeKind {
	case "postgres":
		conn, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()
		if _, err := db.RunMigrations(ctx, conn, db.Migrations()); err != nil {
			return err
		}
		store = db.NewStore(conn, cfg.LockTimeout)
	case "memory":
		store = memoryStore(cfg.LockTimeout, cfg.InitialBalance)
		slog.Warn("using in-memory store, data is lost on exit")
	default:
		return fmt.Errorf("unknown store %q (want postgres or memory)", storeKind)
	}

	hub := handlers.NewHub(256)
	hub.Start()
	defer hub.Stop()

	svc := ledger.NewService(store, policy, ledger.WithNotifier(hub))

	gin.SetMode(cfg.GinMode)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(handlers.NewHandler(svc), verifier, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr, "store", storeKind,
			"penalty_rate", policy.PenaltyRate.String(), "positions", policy.Positions)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}

func memoryStore(lockTimeout time.Duration, balance decimal.Decimal) *memstore.Store {
	store := memstore.New(lockTimeout)
	for _, u := range demoUsers {
		created, _ := store.AddUser(u, balance)
		slog.Info("demo user created", "user_id", created.ID, "username", created.Username)
	}
	for _, o := range db.SampleOpportunities() {
		store.AddOpportunity(o)
	}
	return store
}
