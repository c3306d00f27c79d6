// Command pocketledger runs the ledger HTTP service and its admin tasks.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinoosan/pocketledger/internal/config"
)

// version is set at build time with -ldflags.
var version = "dev"

type rootFlags struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "pocketledger",
		Short: "Personal finance ledger service",
		Long: `pocketledger keeps per-user multi-currency balances as a double-entry ledger.

Configuration is read from the environment (DATABASE_URL, SQLITE_PATH,
HTTP_ADDR, TOKEN_TTL, TX_TIMEOUT, ALLOW_OVERDRAFT, CORS_ORIGINS, DEV_SEED,
LOG_LEVEL, LOG_FORMAT). Flags override the environment.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format: json or text")

	root.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newUserCmd(flags),
		newTokenCmd(flags),
	)
	return root
}

// loadConfig reads the environment and applies the persistent flags.
func loadConfig(flags *rootFlags) (config.Config, *slog.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.LogFormat = flags.logFormat
	}
	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
