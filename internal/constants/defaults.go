package constants

// Default provisioning configuration values
const (
	DefaultStateTTLMinutes       = 60
	DefaultRetryInitialBackoffMs = 1000
	DefaultRetryMaxBackoffMs     = 60000
	DefaultRetryMaxAttempts      = 3
	DefaultAttemptTimeoutSec     = 30
)

// Default verification configuration values
const (
	DefaultChallengeTTLMinutes = 30
	DefaultChallengePollSec    = 3
	DefaultChallengeCeilingMin = 35
	DefaultChallengeSweepSec   = 30
	DefaultChallengeCodeLength = 6
)

// Default timeline sync configuration values
const (
	DefaultOptimisticWindowSec = 5
	DefaultDedupWindowSec      = 3
)

// Default server configuration values
const (
	DefaultServerPort            = 8084
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultRateLimitRequests     = 30
	DefaultRateLimitWindowSec    = 60
	DefaultHTTPTimeoutSec        = 30
	DefaultDatabaseRetryAttempts = 3
	ServerErrorChannelSize       = 1
)

// Default stream consumer configuration values
const (
	DefaultStreamReconnectInitialMs = 500
	DefaultStreamReconnectMaxSec    = 30
)

// Notification sink defaults
const (
	DefaultNotificationBufferSize = 64
)

// Encryption settings
const (
	NonceSize               = 12
	KeyDerivationIterations = 100000
	EncryptionKeySize       = 32
)
