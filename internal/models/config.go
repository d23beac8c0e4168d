package models

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
	Session  SessionConfig  `json:"session"`
	Health   HealthConfig   `json:"health"`
	Events   EventsConfig   `json:"events"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
}

// ServerConfig holds HTTP server related configurations
type ServerConfig struct {
	Port                 int      `json:"port"`
	ReadTimeoutSec       int      `json:"read_timeout_sec"`
	WriteTimeoutSec      int      `json:"write_timeout_sec"`
	IdleTimeoutSec       int      `json:"idle_timeout_sec"`
	AdminToken           string   `json:"admin_token"`
	RateLimitPerMinute   int      `json:"rate_limit_per_minute"`
	RateLimitBurst       int      `json:"rate_limit_burst"`
	TrustedProxies       []string `json:"trusted_proxies"`
	WebhookMaxSkewSec    int      `json:"webhook_max_skew_sec"`
	GracefulShutdownSec  int      `json:"graceful_shutdown_sec"`
	QRRequestTimeoutSec  int      `json:"qr_request_timeout_sec"`
	AllowedEventsOrigins []string `json:"allowed_events_origins"`
	CORSOrigins          []string `json:"cors_origins"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// WhatsAppConfig holds settings for the WAHA-style gateway adapter
type WhatsAppConfig struct {
	APIBaseURL      string `json:"api_base_url"`
	APIKey          string `json:"api_key"`
	WebhookSecret   string `json:"webhook_secret"`
	TimeoutSec      int    `json:"timeout_sec"`
	StatusPollMs    int    `json:"status_poll_ms"`
	QRSizePixels    int    `json:"qr_size_px"`
	CircuitMaxFails int    `json:"circuit_max_failures"`
}

// TelegramConfig holds settings for the Bot API adapter
type TelegramConfig struct {
	APIBaseURL      string `json:"api_base_url"`
	TimeoutSec      int    `json:"timeout_sec"`
	QRSizePixels    int    `json:"qr_size_px"`
	CircuitMaxFails int    `json:"circuit_max_failures"`
}

// SessionConfig holds session lifecycle settings
type SessionConfig struct {
	QRTTLSec                int           `json:"qr_ttl_sec"`
	MaxConcurrentReconnects int           `json:"max_concurrent_reconnects"`
	AttemptTimeoutSec       int           `json:"attempt_timeout_sec"`
	ReadyPollMs             int           `json:"ready_poll_ms"`
	RecoveryDelaySec        int           `json:"recovery_delay_sec"`
	Backoff                 BackoffConfig `json:"backoff"`
}

// BackoffConfig holds reconnect retry settings
type BackoffConfig struct {
	InitialBackoffMs int     `json:"initial_backoff_ms"`
	MaxBackoffMs     int     `json:"max_backoff_ms"`
	Multiplier       float64 `json:"multiplier"`
	MaxAttempts      int     `json:"max_attempts"`
	DisableJitter    bool    `json:"disable_jitter"`
}

// HealthConfig holds health monitor settings
type HealthConfig struct {
	IntervalSec     int `json:"interval_sec"`
	ProbeTimeoutSec int `json:"probe_timeout_sec"`
	InitialDelaySec int `json:"initial_delay_sec"`
}

// EventsConfig holds event broadcaster settings
type EventsConfig struct {
	SubscriberBuffer int `json:"subscriber_buffer"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
