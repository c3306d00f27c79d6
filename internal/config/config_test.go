package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, BackendMemory, c.Backend())
	assert.True(t, c.AllowOverdraft)
	assert.Equal(t, 6*time.Hour, c.TokenTTL)
}

func TestLoad_Overrides(t *testing.T) {
	c, err := Load(env(map[string]string{
		"SQLITE_PATH":     "/tmp/ledger.db",
		"HTTP_ADDR":       ":9090",
		"TOKEN_TTL":       "30m",
		"TX_TIMEOUT":      "2s",
		"ALLOW_OVERDRAFT": "no",
		"CORS_ORIGINS":    "http://localhost:3000, https://app.example.com ,",
		"DEV_SEED":        "true",
		"LOG_FORMAT":      "TEXT",
	}))
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, c.Backend())
	assert.Equal(t, ":9090", c.HTTPAddr)
	assert.Equal(t, 30*time.Minute, c.TokenTTL)
	assert.Equal(t, 2*time.Second, c.TxTimeout)
	assert.False(t, c.AllowOverdraft)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, c.CORSOrigins)
	assert.True(t, c.DevSeed)
	assert.Equal(t, "text", c.LogFormat)

	c, err = Load(env(map[string]string{"DATABASE_URL": "postgres://x", "SQLITE_PATH": "/tmp/x.db"}))
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, c.Backend())
}

func TestLoad_Invalid(t *testing.T) {
	for _, kv := range [][2]string{
		{"TOKEN_TTL", "soon"},
		{"TOKEN_TTL", "-1h"},
		{"TX_TIMEOUT", "fast"},
		{"ALLOW_OVERDRAFT", "maybe"},
		{"DEV_SEED", "2"},
	} {
		_, err := Load(env(map[string]string{kv[0]: kv[1]}))
		assert.Error(t, err, kv[0]+"="+kv[1])
	}
}

func TestLogger(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel(""))

	var buf bytes.Buffer
	Config{LogLevel: "warn", LogFormat: "json"}.Logger(&buf).Info("hidden")
	assert.Empty(t, buf.String())
	Config{LogLevel: "info", LogFormat: "json"}.Logger(&buf).Info("shown", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	buf.Reset()
	Config{LogFormat: "text"}.Logger(&buf).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
