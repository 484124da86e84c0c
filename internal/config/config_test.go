package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"WIKIBASE_API_URL", "WIKIBASE_SPARQL_URL", "TOPO_ID_PROPERTY", "WIKIBASE_USER", "WIKIBASE_PASSWORD",
	"HTTP_TIMEOUT_SEC", "REQUESTS_PER_SECOND", "IMPORT_WORKERS", "UPDATE_EXISTING_STOPS", "LOG_LEVEL",
	"METRICS_ADDR", "NATS_URL", "NATS_SUBJECT_PREFIX", "LEDGER_DSN", "DATABASE_URL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("WIKIBASE_API_URL", "http://wikibase:80/w/api.php")
	t.Setenv("TOPO_ID_PROPERTY", "P7")
	t.Setenv("HTTP_TIMEOUT_SEC", "5")
	t.Setenv("REQUESTS_PER_SECOND", "2.5")
	t.Setenv("IMPORT_WORKERS", "4")
	t.Setenv("UPDATE_EXISTING_STOPS", "yes")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://localhost/topo")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://wikibase:80/w/api.php", cfg.APIURL)
	assert.Equal(t, "P7", cfg.TopoIDProperty)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2.5, cfg.RequestsPerSecond)
	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.UpdateStops)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/topo", cfg.LedgerDSN)
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidEnvironment(t *testing.T) {
	for k, v := range map[string]string{
		"HTTP_TIMEOUT_SEC":      "0",
		"REQUESTS_PER_SECOND":   "-1",
		"IMPORT_WORKERS":        "many",
		"UPDATE_EXISTING_STOPS": "maybe",
	} {
		t.Run(k, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(k, v)
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), k)
		})
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "topo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: http://file/api.php
sparql_url: http://file/sparql
workers: 3
http_timeout: 10s
ledger_dsn: file.db
`), 0o600))
	t.Setenv("LEDGER_DSN", "env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://file/api.php", cfg.APIURL)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "env.db", cfg.LedgerDSN, "environment wins over the file")
	assert.Equal(t, "P1", cfg.TopoIDProperty, "defaults survive a partial file")
}

func TestLoadBadFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad api url", func(c *Config) { c.APIURL = "not a url" }, "APIURL"},
		{"item as marker", func(c *Config) { c.TopoIDProperty = "Q1" }, "TopoIDProperty"},
		{"user without password", func(c *Config) { c.User = "bot" }, "Password"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "Workers"},
		{"unknown level", func(c *Config) { c.LogLevel = "verbose" }, "LogLevel"},
		{"bad nats url", func(c *Config) { c.NATSURL = "::" }, "NATSURL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}
