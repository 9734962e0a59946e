package config

import (
	"os"
	"path/filepath"
	"testing"

	"channelsync/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const minimalConfig = `{
	"database": {"path": "/tmp/channelsync-test.db"},
	"providers": {
		"whatsapp": {
			"api_base_url": "https://api.example.com",
			"partner_token": "partner-token",
			"webhook_url": "https://hooks.example.com/webhook/inbound"
		}
	}
}`

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultRateLimitRequests, cfg.Server.RateLimitRequests)
	assert.Equal(t, constants.DefaultRetryMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, constants.DefaultStateTTLMinutes, cfg.Provisioning.StateTTLMinutes)
	assert.Equal(t, constants.DefaultChallengeTTLMinutes, cfg.Verification.ChallengeTTLMinutes)
	assert.Equal(t, constants.DefaultChallengePollSec, cfg.Verification.PollIntervalSec)
	assert.Equal(t, constants.DefaultChallengeCeilingMin, cfg.Verification.PollCeilingMinutes)
	assert.Equal(t, constants.DefaultOptimisticWindowSec, cfg.Sync.OptimisticWindowSec)
	assert.Equal(t, constants.DefaultDedupWindowSec, cfg.Sync.DedupWindowSec)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "{not json"))
	assert.Error(t, err)
}

func TestLoadConfigMissingDatabasePath(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{
		"providers": {"whatsapp": {"api_base_url": "https://api.example.com", "partner_token": "pt"}}
	}`))
	assert.ErrorIs(t, err, ErrMissingDBPath)
}

func TestLoadConfigRequiresAProvider(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"database": {"path": "/tmp/x.db"}}`))
	assert.Error(t, err)
}

func TestLoadConfigProviderFieldValidation(t *testing.T) {
	// Facebook without app_id
	_, err := LoadConfig(writeConfig(t, `{
		"database": {"path": "/tmp/x.db"},
		"providers": {"facebook": {"api_base_url": "https://graph.example.com"}}
	}`))
	assert.Error(t, err)

	// WhatsApp without partner_token
	_, err = LoadConfig(writeConfig(t, `{
		"database": {"path": "/tmp/x.db"},
		"providers": {"whatsapp": {"api_base_url": "https://api.example.com"}}
	}`))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/override.db")
	t.Setenv("CHANNELSYNC_WEBHOOK_SECRET", "env-webhook-secret")
	t.Setenv("CHANNELSYNC_WHATSAPP_PARTNER_TOKEN", "env-partner-token")
	t.Setenv("PORT", "9191")
	t.Setenv("CHANNELSYNC_STREAM_URL", "wss://stream.example.com/feed")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "env-webhook-secret", cfg.Server.WebhookSecret)
	assert.Equal(t, "env-partner-token", cfg.Providers.WhatsApp.PartnerToken)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.True(t, cfg.Stream.Enabled)
	assert.Equal(t, "wss://stream.example.com/feed", cfg.Stream.URL)
}

func TestProductionRequiresStrongWebhookSecret(t *testing.T) {
	t.Setenv("CHANNELSYNC_ENV", "production")

	// No secret at all.
	t.Setenv("CHANNELSYNC_WEBHOOK_SECRET", "")
	_, err := LoadConfig(writeConfig(t, minimalConfig))
	assert.Error(t, err)

	// Too short.
	t.Setenv("CHANNELSYNC_WEBHOOK_SECRET", "short")
	_, err = LoadConfig(writeConfig(t, minimalConfig))
	assert.Error(t, err)

	// Long enough.
	t.Setenv("CHANNELSYNC_WEBHOOK_SECRET", "0123456789abcdef0123456789abcdef")
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Server.WebhookSecret)
}

func TestProductionRejectsDebugLogging(t *testing.T) {
	t.Setenv("CHANNELSYNC_ENV", "production")
	t.Setenv("CHANNELSYNC_WEBHOOK_SECRET", "0123456789abcdef0123456789abcdef")

	_, err := LoadConfig(writeConfig(t, `{
		"database": {"path": "/tmp/x.db"},
		"log_level": "debug",
		"providers": {"whatsapp": {"api_base_url": "https://api.example.com", "partner_token": "pt"}}
	}`))
	assert.Error(t, err)
}
