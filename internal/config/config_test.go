package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/botgateway/internal/config"
)

func TestValidateReportsAllMissingFields(t *testing.T) {
	cfg := config.Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "DSN")
	require.Contains(t, err.Error(), "DOMAIN")
	require.Contains(t, err.Error(), "API_ID")
	require.Contains(t, err.Error(), "API_HASH")
	require.Contains(t, err.Error(), "PUBLIC_KEY")
	require.Contains(t, err.Error(), "ADMIN_API_URL")
}

func TestValidatePassesWithAllRequiredFields(t *testing.T) {
	cfg := config.Defaults()
	cfg.DSN = "file::memory:"
	cfg.Domain = "example.com"
	cfg.APIID = 12345
	cfg.APIHash = "hash"
	cfg.PublicKey = "key"
	cfg.AdminAPIURL = "http://localhost:9000"
	require.NoError(t, cfg.Validate())
}

func TestEnsureSessionsDirCreatesDirectory(t *testing.T) {
	cfg := config.Defaults()
	cfg.SessionsDir = t.TempDir() + "/sessions"
	require.NoError(t, cfg.EnsureSessionsDir())
}
