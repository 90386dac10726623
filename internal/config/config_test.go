package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation/internal/auth"
)

// isolate runs the test in an empty directory with no LIBRARY_* overrides.
func isolate(t *testing.T) string {
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range []string{"LIBRARY_DB_DRIVER", "LIBRARY_DB_PATH", "LIBRARY_HTTP_ADDR", "LIBRARY_LOG_LEVEL", "LIBRARY_BARCODE_PREFIX"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("missing.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "library.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  path: data/circ.db
scanner:
  speed_threshold: 30ms
  min_length: 8
circulation:
  loan_period: 168h
staff:
  - username: alice
    password_hash: $2a$10$abcdefghijklmnopqrstuv
`), 0o644))
	t.Setenv("LIBRARY_DB_PATH", "/var/lib/library.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/var/lib/library.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Millisecond, cfg.Scanner.SpeedThreshold)
	assert.Equal(t, 8, cfg.Scanner.MinLength)
	assert.Equal(t, 7*24*time.Hour, cfg.Circulation.LoanPeriod)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Len(t, cfg.Staff, 1)
	assert.Equal(t, "alice", cfg.Staff[0].Username)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LIBRARY_HTTP_ADDR=127.0.0.1:9000\n"), 0o644))
	// godotenv does not override variables that are already set, even to "".
	require.NoError(t, os.Unsetenv("LIBRARY_HTTP_ADDR"))
	t.Cleanup(func() { os.Unsetenv("LIBRARY_HTTP_ADDR") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scanner: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"driver", func(c *Config) { c.Database.Driver = "postgres" }},
		{"path", func(c *Config) { c.Database.Path = " " }},
		{"prefix with hyphen", func(c *Config) { c.Barcode.Prefix = "LIB-X" }},
		{"threshold", func(c *Config) { c.Scanner.SpeedThreshold = 0 }},
		{"min length", func(c *Config) { c.Scanner.MinLength = 0 }},
		{"loan period", func(c *Config) { c.Circulation.LoanPeriod = -time.Hour }},
		{"staff hash", func(c *Config) { c.Staff = append(c.Staff, auth.Account{Username: "bob"}) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
