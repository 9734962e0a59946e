package models

// Config holds the application configuration
type Config struct {
	Providers    ProvidersConfig    `json:"providers"`
	Database     DatabaseConfig     `json:"database"`
	Server       ServerConfig       `json:"server"`
	Retry        RetryConfig        `json:"retry"`
	Provisioning ProvisioningConfig `json:"provisioning"`
	Verification VerificationConfig `json:"verification"`
	Sync         SyncConfig         `json:"sync"`
	Stream       StreamConfig       `json:"stream"`
	Tracing      TracingConfig      `json:"tracing"`
	LogLevel     string             `json:"log_level"`
}

// ProvidersConfig holds per-provider API configuration.
type ProvidersConfig struct {
	Facebook  GraphProviderConfig    `json:"facebook"`
	Instagram GraphProviderConfig    `json:"instagram"`
	WhatsApp  WhatsAppProviderConfig `json:"whatsapp"`
}

// GraphProviderConfig configures a Meta Graph API app.
type GraphProviderConfig struct {
	APIBaseURL    string `json:"api_base_url"`
	AppID         string `json:"app_id"`
	AppSecret     string `json:"app_secret"`
	RedirectURI   string `json:"redirect_uri"`
	WebhookFields string `json:"webhook_fields"`
}

// WhatsAppProviderConfig configures the Green-API style WhatsApp service.
type WhatsAppProviderConfig struct {
	APIBaseURL   string `json:"api_base_url"`
	PartnerToken string `json:"partner_token"`
	WebhookURL   string `json:"webhook_url"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ServerConfig holds HTTP server related configurations
type ServerConfig struct {
	Port               int    `json:"port"`
	WebhookSecret      string `json:"webhook_secret"`
	RateLimitRequests  int    `json:"rateLimitRequests"`
	RateLimitWindowSec int    `json:"rateLimitWindowSec"`
	ReadTimeoutSec     int    `json:"readTimeoutSec"`
	WriteTimeoutSec    int    `json:"writeTimeoutSec"`
	IdleTimeoutSec     int    `json:"idleTimeoutSec"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs  int `json:"initialBackoffMs"`
	MaxBackoffMs      int `json:"maxBackoffMs"`
	MaxAttempts       int `json:"maxAttempts"`
	AttemptTimeoutSec int `json:"attemptTimeoutSec"`
}

// ProvisioningConfig holds provisioning pipeline tunables.
type ProvisioningConfig struct {
	StateTTLMinutes int `json:"stateTTLMinutes"`
}

// VerificationConfig holds verification challenge tunables.
type VerificationConfig struct {
	ChallengeTTLMinutes int `json:"challengeTTLMinutes"`
	PollIntervalSec     int `json:"pollIntervalSec"`
	PollCeilingMinutes  int `json:"pollCeilingMinutes"`
	SweepIntervalSec    int `json:"sweepIntervalSec"`
}

// SyncConfig holds timeline reconciliation tunables. The windows are
// empirically chosen and deliberately asymmetric; see Timeline.Apply.
type SyncConfig struct {
	OptimisticWindowSec int `json:"optimisticWindowSec"`
	DedupWindowSec      int `json:"dedupWindowSec"`
}

// StreamConfig holds realtime feed consumer configuration.
type StreamConfig struct {
	URL                string `json:"url"`
	Enabled            bool   `json:"enabled"`
	ReconnectInitialMs int    `json:"reconnectInitialMs"`
	ReconnectMaxSec    int    `json:"reconnectMaxSec"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
