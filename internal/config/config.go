// Package config loads the console's settings from an optional YAML file, a
// .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"library-circulation/internal/auth"
)

// Config holds all runtime settings.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
	Barcode     BarcodeConfig     `yaml:"barcode"`
	Scanner     ScannerConfig     `yaml:"scanner"`
	Circulation CirculationConfig `yaml:"circulation"`

	// Staff is the allowlist of desk accounts. Empty means no gate.
	Staff []auth.Account `yaml:"staff"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	Path   string `yaml:"path"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type BarcodeConfig struct {
	Prefix string `yaml:"prefix"`
}

type ScannerConfig struct {
	SpeedThreshold time.Duration `yaml:"speed_threshold"`
	MinLength      int           `yaml:"min_length"`
}

type CirculationConfig struct {
	LoanPeriod time.Duration `yaml:"loan_period"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Database:    DatabaseConfig{Driver: "sqlite3", Path: "library.db"},
		HTTP:        HTTPConfig{Addr: ":8080"},
		Logging:     LoggingConfig{Level: "info"},
		Barcode:     BarcodeConfig{Prefix: "LIB"},
		Scanner:     ScannerConfig{SpeedThreshold: 50 * time.Millisecond, MinLength: 5},
		Circulation: CirculationConfig{LoanPeriod: 14 * 24 * time.Hour},
	}
}

// Load reads .env from the working directory (if present), then the YAML
// file at path (if path is set and exists), then applies LIBRARY_*
// environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LIBRARY_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("LIBRARY_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("LIBRARY_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("LIBRARY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LIBRARY_BARCODE_PREFIX"); v != "" {
		c.Barcode.Prefix = v
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("invalid database driver %q (valid: sqlite3, sqlite)", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database path is empty")
	}
	if strings.ContainsAny(c.Barcode.Prefix, "- ") || c.Barcode.Prefix == "" {
		return fmt.Errorf("invalid barcode prefix %q", c.Barcode.Prefix)
	}
	if c.Scanner.SpeedThreshold <= 0 {
		return fmt.Errorf("scanner speed threshold must be positive, got %s", c.Scanner.SpeedThreshold)
	}
	if c.Scanner.MinLength <= 0 {
		return fmt.Errorf("scanner min length must be positive, got %d", c.Scanner.MinLength)
	}
	if c.Circulation.LoanPeriod <= 0 {
		return fmt.Errorf("loan period must be positive, got %s", c.Circulation.LoanPeriod)
	}
	seen := make(map[string]bool, len(c.Staff))
	for _, a := range c.Staff {
		if a.Username == "" || a.PasswordHash == "" {
			return fmt.Errorf("staff entries need a username and a password_hash")
		}
		if seen[a.Username] {
			return fmt.Errorf("duplicate staff account %q", a.Username)
		}
		seen[a.Username] = true
	}
	return nil
}
