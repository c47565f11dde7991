// Package config loads and stores querydeck configuration in the XDG config dir.
// Only non-secret connection settings are kept here; the engine password goes
// to the OS keychain. Settings are re-read at the start of every query run so
// that edits and credential rotations take effect on the next execution
// without restarting.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"querydeck/cli/internal/xdg"
)

// DefaultMaxRows is the row cap applied to displayed results when the
// max_rows_to_display setting is absent or invalid.
const DefaultMaxRows = 500

// Config holds non-sensitive connection and display settings for the
// Presto/Trino coordinator.
type Config struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	User      string `json:"user"`
	Catalog   string `json:"catalog,omitempty"`
	Schema    string `json:"schema,omitempty"`
	SSL       bool   `json:"ssl"`
	SSLVerify bool   `json:"ssl_verify"`
	// Trino switches the protocol headers from X-Presto-* to X-Trino-*.
	Trino bool `json:"trino,omitempty"`
	// MaxRows caps how many result rows are accumulated for display.
	MaxRows int `json:"max_rows_to_display"`
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; a missing file returns defaults.
func Load() (Config, error) {
	var c Config
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	return c, nil
}

// Defaults returns the configuration used when no config file exists.
// Host and user are intentionally empty so Validate fails fast until
// `querydeck connect` has been run.
func Defaults() Config {
	return Config{
		Port:      8080,
		SSLVerify: true,
		MaxRows:   DefaultMaxRows,
	}
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// Validate checks that the settings required to reach the coordinator are
// present and plausible.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is not set (run: querydeck connect)")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if c.User == "" {
		return errors.New("user is not set (run: querydeck connect)")
	}
	if c.MaxRows <= 0 {
		return fmt.Errorf("max_rows_to_display must be positive, got %d", c.MaxRows)
	}
	return nil
}

// ServerURL returns the coordinator base URL derived from host, port and ssl.
func (c Config) ServerURL() string {
	scheme := "http"
	if c.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}
