// Package config holds the gateway's runtime configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Config is the configuration needed to start the gateway.
type Config struct {
	Addr         string
	Driver       string // "sqlite" or "postgres"
	DSN          string
	Domain       string
	Port         int
	APIID        int
	APIHash      string
	PublicKey    string
	AdminAPIURL  string
	BotfatherPhone string
	Brand        string
	SessionsDir  string
	SessionKey   string // 32-byte key, used as raw bytes, to encrypt session files at rest

	MaxQueueSize          int
	MaxUpdatesLimit       int
	MaxTimeout            int
	RequestTimeout        int
	CallbackMaxAttempts   int
	CallbackCheckInterval int // milliseconds
	CleanupIntervalSec    int
}

// Defaults mirrors the constants the source config.py hard-codes.
func Defaults() Config {
	return Config{
		Driver:                "sqlite",
		Brand:                 "Bot API Server",
		SessionsDir:           "sessions",
		Port:                  8081,
		MaxQueueSize:          1000,
		MaxUpdatesLimit:       100,
		MaxTimeout:            50,
		RequestTimeout:        30,
		CallbackMaxAttempts:   20,
		CallbackCheckInterval: 300,
		CleanupIntervalSec:    300,
	}
}

// Validate ensures every field the gateway cannot start without is present.
// A missing required value is a fatal startup error, matching Config.validate
// in the source implementation.
func (c *Config) Validate() error {
	var missing []string
	if c.DSN == "" {
		missing = append(missing, "DSN")
	}
	if c.Domain == "" {
		missing = append(missing, "DOMAIN")
	}
	if c.Port == 0 {
		missing = append(missing, "PORT")
	}
	if c.APIID == 0 {
		missing = append(missing, "API_ID")
	}
	if c.APIHash == "" {
		missing = append(missing, "API_HASH")
	}
	if c.PublicKey == "" {
		missing = append(missing, "PUBLIC_KEY")
	}
	if c.AdminAPIURL == "" {
		missing = append(missing, "ADMIN_API_URL")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// EnsureSessionsDir creates the sessions directory if it doesn't exist yet.
func (c *Config) EnsureSessionsDir() error {
	dir := c.SessionsDir
	if !filepath.IsAbs(dir) {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return errors.Wrapf(err, "unable to resolve sessions dir %s", dir)
		}
		dir = absDir
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "unable to create sessions dir %s", dir)
	}
	c.SessionsDir = dir
	return nil
}
