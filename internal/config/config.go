// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends, chosen in this order of precedence.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type Config struct {
	DatabaseURL    string
	SQLitePath     string
	HTTPAddr       string
	TokenTTL       time.Duration
	TxTimeout      time.Duration
	AllowOverdraft bool
	CORSOrigins    []string
	DevSeed        bool
	LogLevel       string
	LogFormat      string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTPAddr:       ":8080",
		TokenTTL:       6 * time.Hour,
		TxTimeout:      5 * time.Second,
		AllowOverdraft: true,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// FromEnv reads the process environment.
func FromEnv() (Config, error) { return Load(os.Getenv) }

// Load builds a Config from getenv, falling back to Default for unset keys.
func Load(getenv func(string) string) (Config, error) {
	c := Default()
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	c.DatabaseURL = get("DATABASE_URL")
	c.SQLitePath = get("SQLITE_PATH")
	if v := get("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := get("TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("TOKEN_TTL: invalid duration %q", v)
		}
		c.TokenTTL = d
	}
	if v := get("TX_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("TX_TIMEOUT: invalid duration %q", v)
		}
		c.TxTimeout = d
	}
	if v := get("ALLOW_OVERDRAFT"); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("ALLOW_OVERDRAFT: %w", err)
		}
		c.AllowOverdraft = b
	}
	if v := get("CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}
	if v := get("DEV_SEED"); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("DEV_SEED: %w", err)
		}
		c.DevSeed = b
	}
	if v := get("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := get("LOG_FORMAT"); v != "" {
		c.LogFormat = strings.ToLower(v)
	}
	return c, nil
}

// parseBool accepts the usual strconv forms plus yes/no.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

// Backend names the storage backend selected by the settings.
func (c Config) Backend() string {
	switch {
	case c.DatabaseURL != "":
		return BackendPostgres
	case c.SQLitePath != "":
		return BackendSQLite
	default:
		return BackendMemory
	}
}

// ParseLogLevel maps env values to slog.Leveler.
func ParseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds the process logger writing to w: JSON unless LogFormat is "text".
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(c.LogLevel)}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
