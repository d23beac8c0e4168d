package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/XOOChatx/Chat-X/internal/constants"
	apperrors "github.com/XOOChatx/Chat-X/internal/errors"
	"github.com/XOOChatx/Chat-X/internal/models"
	"github.com/XOOChatx/Chat-X/internal/security"
	"github.com/XOOChatx/Chat-X/internal/validation"
)

var (
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
	ErrInvalidWhatsAppURL  = models.ConfigError{Message: "invalid WhatsApp API URL"}
	ErrInvalidTelegramURL  = models.ConfigError{Message: "invalid Telegram API URL"}
	ErrInvalidPort         = models.ConfigError{Message: "server port must be between 1 and 65535"}
	ErrInvalidBackoff      = models.ConfigError{Message: "session backoff multiplier must be at least 1"}
	ErrInvalidAttemptLimit = models.ConfigError{Message: "session backoff max_attempts must be at least 1"}
)

// EnvProduction marks a deployment that must carry real secrets
const EnvProduction = "production"

// LoadConfig reads, defaults, overrides from the environment and validates
// the JSON configuration at path.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyDefaults(&config)

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	setInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}

	setInt(&c.Server.Port, constants.DefaultServerPort)
	setInt(&c.Server.ReadTimeoutSec, constants.DefaultServerReadTimeoutSec)
	setInt(&c.Server.WriteTimeoutSec, constants.DefaultServerWriteTimeoutSec)
	setInt(&c.Server.IdleTimeoutSec, constants.DefaultServerIdleTimeoutSec)
	setInt(&c.Server.RateLimitPerMinute, constants.DefaultRateLimitPerMinute)
	setInt(&c.Server.RateLimitBurst, constants.DefaultRateLimitBurst)
	setInt(&c.Server.WebhookMaxSkewSec, constants.DefaultWebhookMaxSkewSec)
	setInt(&c.Server.GracefulShutdownSec, constants.DefaultGracefulShutdownSec)
	setInt(&c.Server.QRRequestTimeoutSec, constants.DefaultQRRequestTimeoutSec)

	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}

	if c.WhatsApp.APIBaseURL == "" {
		c.WhatsApp.APIBaseURL = constants.DefaultWhatsAppAPIBaseURL
	}
	setInt(&c.WhatsApp.TimeoutSec, constants.DefaultWhatsAppTimeoutSec)
	setInt(&c.WhatsApp.StatusPollMs, constants.DefaultWhatsAppStatusPollMs)
	setInt(&c.WhatsApp.QRSizePixels, constants.DefaultQRSizePixels)
	setInt(&c.WhatsApp.CircuitMaxFails, constants.DefaultCircuitMaxFailures)

	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = constants.DefaultTelegramAPIBaseURL
	}
	setInt(&c.Telegram.TimeoutSec, constants.DefaultTelegramTimeoutSec)
	setInt(&c.Telegram.QRSizePixels, constants.DefaultQRSizePixels)
	setInt(&c.Telegram.CircuitMaxFails, constants.DefaultCircuitMaxFailures)

	setInt(&c.Session.QRTTLSec, constants.DefaultQRTTLSec)
	setInt(&c.Session.MaxConcurrentReconnects, constants.DefaultMaxConcurrentReconnects)
	setInt(&c.Session.AttemptTimeoutSec, constants.DefaultReconnectAttemptTimeout)
	setInt(&c.Session.ReadyPollMs, constants.DefaultReconnectReadyPollMs)
	if c.Session.RecoveryDelaySec < 0 {
		c.Session.RecoveryDelaySec = 0
	} else if c.Session.RecoveryDelaySec == 0 {
		c.Session.RecoveryDelaySec = constants.DefaultRecoveryDelaySec
	}
	setInt(&c.Session.Backoff.InitialBackoffMs, constants.DefaultReconnectInitialBackoffMs)
	setInt(&c.Session.Backoff.MaxBackoffMs, constants.DefaultReconnectMaxBackoffMs)
	setInt(&c.Session.Backoff.MaxAttempts, constants.DefaultReconnectMaxAttempts)
	if c.Session.Backoff.Multiplier == 0 {
		c.Session.Backoff.Multiplier = constants.DefaultReconnectMultiplier
	}

	setInt(&c.Health.IntervalSec, constants.DefaultSessionHealthCheckSec)
	setInt(&c.Health.ProbeTimeoutSec, constants.DefaultProbeTimeoutSec)
	if c.Health.InitialDelaySec == 0 {
		c.Health.InitialDelaySec = constants.DefaultSessionMonitorInitDelaySec
	}

	setInt(&c.Events.SubscriberBuffer, constants.DefaultSubscriberBufferSize)

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "chatx"
	}
	if c.LogLevel == "" {
		c.LogLevel = constants.DefaultLogLevel
	}
}

func applyEnvironmentOverrides(c *models.Config) error {
	if token := os.Getenv("CHATX_ADMIN_TOKEN"); token != "" {
		c.Server.AdminToken = token
	}
	if path := os.Getenv("CHATX_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if u := os.Getenv("WAHA_API_URL"); u != "" {
		c.WhatsApp.APIBaseURL = u
	}
	if key := os.Getenv("WAHA_API_KEY"); key != "" {
		c.WhatsApp.APIKey = key
	}
	// SECURITY: webhook secrets should come from the environment
	if secret := os.Getenv("CHATX_WHATSAPP_WEBHOOK_SECRET"); secret != "" {
		c.WhatsApp.WebhookSecret = secret
	}
	if u := os.Getenv("TELEGRAM_API_URL"); u != "" {
		c.Telegram.APIBaseURL = u
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid PORT %q", port)}
		}
		c.Server.Port = p
	}
	return nil
}

func validate(c *models.Config) error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	timeouts := []struct {
		field string
		sec   int
	}{
		{"server.read_timeout_sec", c.Server.ReadTimeoutSec},
		{"server.write_timeout_sec", c.Server.WriteTimeoutSec},
		{"server.idle_timeout_sec", c.Server.IdleTimeoutSec},
		{"server.qr_request_timeout_sec", c.Server.QRRequestTimeoutSec},
		{"whatsapp.timeout_sec", c.WhatsApp.TimeoutSec},
		{"telegram.timeout_sec", c.Telegram.TimeoutSec},
		{"session.attempt_timeout_sec", c.Session.AttemptTimeoutSec},
		{"health.probe_timeout_sec", c.Health.ProbeTimeoutSec},
	}
	for _, t := range timeouts {
		if err := validation.ValidateTimeout(t.sec, t.field); err != nil {
			return models.ConfigError{Message: apperrors.GetUserMessage(err)}
		}
	}
	if err := validation.ValidateNumericRange(c.Session.MaxConcurrentReconnects, "session.max_concurrent_reconnects", 1, 256); err != nil {
		return models.ConfigError{Message: apperrors.GetUserMessage(err)}
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if err := security.ValidateDatabasePath(c.Database.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid database path: %v", err)}
	}
	if !isHTTPURL(c.WhatsApp.APIBaseURL) {
		return ErrInvalidWhatsAppURL
	}
	if !isHTTPURL(c.Telegram.APIBaseURL) {
		return ErrInvalidTelegramURL
	}
	if c.Session.Backoff.Multiplier < 1 {
		return ErrInvalidBackoff
	}
	if c.Session.Backoff.MaxAttempts < 1 {
		return ErrInvalidAttemptLimit
	}
	if c.Session.Backoff.MaxBackoffMs < c.Session.Backoff.InitialBackoffMs {
		return models.ConfigError{Message: "session backoff max_backoff_ms must not be below initial_backoff_ms"}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing sample_rate must be between 0 and 1"}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid log_level %q", c.LogLevel)}
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsProduction reports whether CHATX_ENV selects production mode
func IsProduction() bool {
	return os.Getenv("CHATX_ENV") == EnvProduction
}

func validateSecurity(c *models.Config) error {
	if !IsProduction() {
		if c.Server.AdminToken == "" {
			fmt.Fprintf(os.Stderr, "WARNING: admin token not set. Session routes are unauthenticated; set CHATX_ADMIN_TOKEN.\n")
		}
		if c.WhatsApp.WebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: WhatsApp webhook secret not set. Set CHATX_WHATSAPP_WEBHOOK_SECRET for security.\n")
		}
		return nil
	}

	if len(c.Server.AdminToken) < constants.MinEncryptionSecret {
		return models.ConfigError{Message: fmt.Sprintf("admin token must be at least %d characters in production (set CHATX_ADMIN_TOKEN)", constants.MinEncryptionSecret)}
	}
	if len(c.WhatsApp.WebhookSecret) < constants.MinEncryptionSecret {
		return models.ConfigError{Message: fmt.Sprintf("WhatsApp webhook secret must be at least %d characters in production", constants.MinEncryptionSecret)}
	}
	if c.LogLevel == "debug" || c.LogLevel == "trace" {
		return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	}
	return nil
}
