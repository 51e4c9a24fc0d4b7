package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSubstitutesEnv(t *testing.T) {
	t.Setenv("TEST_EDGESQL_TOKEN", "secret")

	path := filepath.Join(t.TempDir(), "edgesql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint:
  token: ${TEST_EDGESQL_TOKEN}
  database: analytics
import:
  max_chunk_rows: 2000
reliability:
  retry_delay: 250ms
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Endpoint.Token)
	assert.Equal(t, "analytics", cfg.Endpoint.Database)
	assert.Equal(t, 2000, cfg.Import.MaxChunkRows)
	assert.Equal(t, 250*time.Millisecond, cfg.Reliability.RetryDelay)
	// untouched defaults survive
	assert.Equal(t, DefaultBaseURL, cfg.Endpoint.BaseURL)
	assert.Equal(t, 512, cfg.Import.DefaultChunkRows)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("A_VAR", "x")
	assert.Equal(t, "x-y-", substituteEnvVars("${A_VAR}-y-${UNSET_VAR_FOR_TEST}"))
	assert.Equal(t, "no vars", substituteEnvVars("no vars"))
	assert.Equal(t, "open ${", substituteEnvVars("open ${"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no url", func(c *Config) { c.Endpoint.BaseURL = "" }, "base_url"},
		{"zero attempts", func(c *Config) { c.Reliability.RetryAttempts = 0 }, "retry_attempts"},
		{"payload", func(c *Config) { c.Import.MaxPayloadBytes = 0 }, "max_payload_bytes"},
		{"clamp order", func(c *Config) { c.Import.MaxChunkRows = 0 }, "max_chunk_rows"},
		{"vector format", func(c *Config) { c.Import.VectorFormat = "f16" }, "vector_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AZION_TOKEN", "tok")
	t.Setenv("MYSQL_HOST", "db.example.com")
	t.Setenv("MYSQL_PORT", "3307")
	t.Setenv("POSTGRES_USERNAME", "pg")
	t.Setenv("TURSO_DATABASE_URL", "https://replica.turso.io")
	t.Setenv("TURSO_ENCRYPTION_KEY", "k")
	t.Setenv("KAGGLE_USERNAME", "kuser")

	cfg := NewConfig()
	cfg.ApplyEnv(NewViper())

	assert.Equal(t, "tok", cfg.Endpoint.Token)
	assert.Equal(t, "db.example.com", cfg.Sources.MySQL.Host)
	assert.Equal(t, 3307, cfg.Sources.MySQL.Port)
	assert.Equal(t, "pg", cfg.Sources.Postgres.Username)
	assert.Equal(t, 5432, cfg.Sources.Postgres.Port)
	assert.Equal(t, "https://replica.turso.io", cfg.Sources.Turso.URL)
	assert.Equal(t, "k", cfg.Sources.Turso.EncryptionKey)
	assert.Equal(t, "kuser", cfg.Sources.Kaggle.Username)
}

func TestRelationalUseTLS(t *testing.T) {
	rc := RelationalConfig{Host: "localhost", SSLCA: "ca", SSLCert: "c", SSLKey: "k"}
	assert.False(t, rc.UseTLS())

	rc.Host = "db.example.com"
	assert.True(t, rc.UseTLS())

	rc.SSLKey = ""
	assert.False(t, rc.UseTLS())
}

func TestKaggleResolveFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaggle.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"username":"u","key":"k"}`), 0600))

	kc := KaggleConfig{ConfigPath: path}
	user, key, err := kc.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "u", user)
	assert.Equal(t, "k", key)

	kc = KaggleConfig{Username: "env", Key: "envkey", ConfigPath: path}
	user, key, err = kc.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "env", user)
	assert.Equal(t, "envkey", key)
}
