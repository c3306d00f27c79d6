package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinoosan/pocketledger/internal/config"
	"github.com/tinoosan/pocketledger/internal/service/user"
	"github.com/tinoosan/pocketledger/internal/storage/postgres"
)

func newMigrateCmd(root *rootFlags) *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		Long: `Apply the embedded SQL migrations to the Postgres database.

SQLite databases create their schema when opened and need no migration step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(root)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("database-url") {
				cfg.DatabaseURL = databaseURL
			}
			if cfg.Backend() != config.BackendPostgres {
				return errors.New("migrate needs DATABASE_URL or --database-url")
			}
			pg, err := postgres.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer pg.Close()
			applied, err := pg.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "versions", applied, "count", len(applied))
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	return cmd
}

// credentials are shared by the user and token subcommands.
type credentials struct {
	email    string
	password string
}

func (c *credentials) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "user email")
	cmd.Flags().StringVar(&c.password, "password", "", "user password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
}

func newUserCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var (
		creds     credentials
		firstName string
		lastName  string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(root)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.close()
			u, err := newServices(b.store, cfg, logger).users.Register(cmd.Context(), user.Registration{
				Email:     creds.email,
				FirstName: firstName,
				LastName:  lastName,
				Password:  creds.password,
			})
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"id": u.ID, "email": u.Email, "created_at": u.CreatedAt})
		},
	}
	creds.bind(create)
	create.Flags().StringVar(&firstName, "first-name", "", "first name")
	create.Flags().StringVar(&lastName, "last-name", "", "last name")

	cmd.AddCommand(create)
	return cmd
}

func newTokenCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}

	var creds credentials
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Log in and print a new access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(root)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.close()
			tok, err := newServices(b.store, cfg, logger).users.Login(cmd.Context(), creds.email, creds.password)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"token": tok.Value, "user_id": tok.UserID, "expire": tok.Expire})
		},
	}
	creds.bind(issue)

	cmd.AddCommand(issue)
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
