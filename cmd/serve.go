package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/tinoosan/pocketledger/internal/httpapi/v1"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	var (
		addr           string
		databaseURL    string
		sqlitePath     string
		devSeedFlag    bool
		allowOverdraft bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API on the configured address.

The storage backend is Postgres when a database URL is set, SQLite when a
file path is set, and an in-memory store otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(root)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("addr") {
				cfg.HTTPAddr = addr
			}
			if f.Changed("database-url") {
				cfg.DatabaseURL = databaseURL
			}
			if f.Changed("sqlite") {
				cfg.SQLitePath = sqlitePath
			}
			if f.Changed("dev-seed") {
				cfg.DevSeed = devSeedFlag
			}
			if f.Changed("allow-overdraft") {
				cfg.AllowOverdraft = allowOverdraft
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer b.close()
			logger.Info("storage backend: " + b.name)

			svc := newServices(b.store, cfg, logger)
			if cfg.DevSeed {
				if err := devSeed(ctx, svc, b.name, logger); err != nil {
					logger.Error("dev seed failed", "err", err)
				}
			}

			api := httpapi.New(httpapi.Deps{
				Accounts:     svc.accounts,
				Transactions: svc.transactions,
				Users:        svc.users,
				Auth:         svc.gateway,
				Ready:        b.ready,
				Logger:       logger,
				CORSOrigins:  cfg.CORSOrigins,
			})
			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           api.Handler(),
				ReadTimeout:       5 * time.Second,
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("ledger service listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctxShutdown); err != nil {
					logger.Error("server shutdown error", "err", err)
				}
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "SQLite database file")
	cmd.Flags().BoolVar(&devSeedFlag, "dev-seed", false, "create a demo user, account and token on start")
	cmd.Flags().BoolVar(&allowOverdraft, "allow-overdraft", true, "let payments take a main account below zero")
	return cmd
}
