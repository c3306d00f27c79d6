package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinoosan/pocketledger/internal/auth"
	"github.com/tinoosan/pocketledger/internal/config"
	"github.com/tinoosan/pocketledger/internal/service/account"
	"github.com/tinoosan/pocketledger/internal/service/transaction"
	"github.com/tinoosan/pocketledger/internal/service/user"
	"github.com/tinoosan/pocketledger/internal/storage"
	"github.com/tinoosan/pocketledger/internal/storage/memory"
	"github.com/tinoosan/pocketledger/internal/storage/postgres"
	"github.com/tinoosan/pocketledger/internal/storage/sqlite"
)

// backend is an opened store plus its readiness check and release func.
type backend struct {
	name  string
	store storage.Store
	ready storage.ReadyChecker
	close func()
}

// openBackend opens the store selected by cfg. Postgres is migrated first.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, error) {
	switch cfg.Backend() {
	case config.BackendPostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, fmt.Errorf("connect to postgres: %w", err)
		}
		applied, err := pg.Migrate(ctx)
		if err != nil {
			pg.Close()
			return backend{}, fmt.Errorf("migrate postgres: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "versions", applied)
		}
		return backend{name: config.BackendPostgres, store: pg, ready: pg, close: pg.Close}, nil
	case config.BackendSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return backend{}, err
		}
		return backend{name: config.BackendSQLite, store: s, ready: s, close: func() { _ = s.Close() }}, nil
	default:
		s := memory.New()
		return backend{name: config.BackendMemory, store: s, ready: s, close: func() {}}, nil
	}
}

// services is the application layer assembled over one store.
type services struct {
	gateway      *auth.Gateway
	accounts     account.Service
	transactions transaction.Service
	users        user.Service
}

func newServices(store storage.Store, cfg config.Config, logger *slog.Logger) services {
	gateway := auth.NewGateway(store, auth.Options{TTL: cfg.TokenTTL, TxTimeout: cfg.TxTimeout})
	accounts := account.New(store, account.Options{TxTimeout: cfg.TxTimeout, Logger: logger})
	return services{
		gateway:  gateway,
		accounts: accounts,
		transactions: transaction.New(store, accounts, transaction.Options{
			AllowOverdraft: cfg.AllowOverdraft,
			TxTimeout:      cfg.TxTimeout,
			Logger:         logger,
		}),
		users: user.New(store, gateway, user.Options{TxTimeout: cfg.TxTimeout, Logger: logger}),
	}
}
