package constants

// Default server configuration values
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
	DefaultRateLimitPerMinute    = 60
	DefaultRateLimitBurst        = 10
	DefaultWebhookMaxSkewSec     = 300
	MaxWebhookBodyBytes          = 1 << 20
	DefaultDatabasePath          = "chatx.db"
	DefaultLogLevel              = "info"
)

// Default provider adapter values
const (
	DefaultWhatsAppAPIBaseURL     = "http://localhost:3000"
	DefaultWhatsAppTimeoutSec     = 30
	DefaultWhatsAppStatusPollMs   = 2000
	DefaultQRSizePixels           = 256
	DefaultCircuitMaxFailures     = 5
	DefaultCircuitResetTimeoutSec = 30
	DefaultTelegramAPIBaseURL     = "https://api.telegram.org"
	DefaultTelegramTimeoutSec     = 15
)

// Config watcher values
const (
	ConfigWatchIntervalSec = 5
	ConfigSettleDelayMs    = 100
)

// Default session lifecycle values
const (
	DefaultQRTTLSec                  = 60
	DefaultQRRequestTimeoutSec       = 20
	DefaultMaxConcurrentReconnects   = 3
	DefaultReconnectAttemptTimeout   = 45
	DefaultReconnectMaxAttempts      = 5
	DefaultReconnectInitialBackoffMs = 1000
	DefaultReconnectMaxBackoffMs     = 60000
	DefaultReconnectReadyPollMs      = 1000
	DefaultReconnectMultiplier       = 2.0
	DefaultRecoveryDelaySec          = 3
	DefaultAdapterStopTimeoutSec     = 10
)

// Default health monitor values
const (
	DefaultSessionHealthCheckSec      = 30
	DefaultSessionMonitorInitDelaySec = 10
	DefaultProbeTimeoutSec            = 10
)

// Default event broadcaster values
const (
	DefaultSubscriberBufferSize = 64
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec         = 30
	DefaultDatabaseRetryAttempts  = 3
	DefaultDatabaseRetryBackoffMs = 100
	DefaultDatabaseMaxBackoffMs   = 2000
)

// Encryption parameters for stored provider credentials
const (
	EncryptionSalt       = "chatx-credential-salt-v1"
	EncryptionIterations = 100000
	EncryptionKeySize    = 32
	EncryptionNonceSize  = 12
	MinEncryptionSecret  = 32
)

// Validation limits
const (
	MaxSessionIDLength = 64
)
