package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"channelsync/internal/constants"
	"channelsync/internal/models"
)

var (
	ErrMissingDBPath = models.ConfigError{Message: "missing database path"}
)

// LoadConfig reads, validates, and defaults the application configuration.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	// At least one provider must be configured
	if c.Providers.Facebook.APIBaseURL == "" &&
		c.Providers.Instagram.APIBaseURL == "" &&
		c.Providers.WhatsApp.APIBaseURL == "" {
		return models.ConfigError{Message: "at least one provider must be configured"}
	}

	if c.Providers.Facebook.APIBaseURL != "" && c.Providers.Facebook.AppID == "" {
		return models.ConfigError{Message: "facebook provider requires app_id"}
	}
	if c.Providers.Instagram.APIBaseURL != "" && c.Providers.Instagram.AppID == "" {
		return models.ConfigError{Message: "instagram provider requires app_id"}
	}
	if c.Providers.WhatsApp.APIBaseURL != "" && c.Providers.WhatsApp.PartnerToken == "" {
		return models.ConfigError{Message: "whatsapp provider requires partner_token"}
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.RateLimitRequests <= 0 {
		c.Server.RateLimitRequests = constants.DefaultRateLimitRequests
	}
	if c.Server.RateLimitWindowSec <= 0 {
		c.Server.RateLimitWindowSec = constants.DefaultRateLimitWindowSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryInitialBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultRetryMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultRetryMaxAttempts
	}
	if c.Retry.AttemptTimeoutSec <= 0 {
		c.Retry.AttemptTimeoutSec = constants.DefaultAttemptTimeoutSec
	}

	if c.Provisioning.StateTTLMinutes <= 0 {
		c.Provisioning.StateTTLMinutes = constants.DefaultStateTTLMinutes
	}

	if c.Verification.ChallengeTTLMinutes <= 0 {
		c.Verification.ChallengeTTLMinutes = constants.DefaultChallengeTTLMinutes
	}
	if c.Verification.PollIntervalSec <= 0 {
		c.Verification.PollIntervalSec = constants.DefaultChallengePollSec
	}
	if c.Verification.PollCeilingMinutes <= 0 {
		c.Verification.PollCeilingMinutes = constants.DefaultChallengeCeilingMin
	}
	if c.Verification.SweepIntervalSec <= 0 {
		c.Verification.SweepIntervalSec = constants.DefaultChallengeSweepSec
	}

	if c.Sync.OptimisticWindowSec <= 0 {
		c.Sync.OptimisticWindowSec = constants.DefaultOptimisticWindowSec
	}
	if c.Sync.DedupWindowSec <= 0 {
		c.Sync.DedupWindowSec = constants.DefaultDedupWindowSec
	}

	if c.Stream.ReconnectInitialMs <= 0 {
		c.Stream.ReconnectInitialMs = constants.DefaultStreamReconnectInitialMs
	}
	if c.Stream.ReconnectMaxSec <= 0 {
		c.Stream.ReconnectMaxSec = constants.DefaultStreamReconnectMaxSec
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}

	// SECURITY: secrets should come from the environment, not the config file
	if secret := os.Getenv("CHANNELSYNC_WEBHOOK_SECRET"); secret != "" {
		c.Server.WebhookSecret = secret
	}
	if secret := os.Getenv("CHANNELSYNC_FACEBOOK_APP_SECRET"); secret != "" {
		c.Providers.Facebook.AppSecret = secret
	}
	if secret := os.Getenv("CHANNELSYNC_INSTAGRAM_APP_SECRET"); secret != "" {
		c.Providers.Instagram.AppSecret = secret
	}
	if token := os.Getenv("CHANNELSYNC_WHATSAPP_PARTNER_TOKEN"); token != "" {
		c.Providers.WhatsApp.PartnerToken = token
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if url := os.Getenv("CHANNELSYNC_STREAM_URL"); url != "" {
		c.Stream.URL = url
		c.Stream.Enabled = true
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("CHANNELSYNC_ENV") == "production"

	if isProduction {
		if c.Server.WebhookSecret == "" {
			return models.ConfigError{Message: "webhook secret is required in production (set CHANNELSYNC_WEBHOOK_SECRET environment variable)"}
		}
		if len(c.Server.WebhookSecret) < 32 {
			return models.ConfigError{Message: "webhook secret must be at least 32 characters long"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		if c.Server.WebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set CHANNELSYNC_WEBHOOK_SECRET environment variable for security.\n")
		}
	}

	return nil
}
