package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XOOChatx/Chat-X/internal/constants"
	"github.com/XOOChatx/Chat-X/internal/models"
)

var configEnvVars = []string{
	"CHATX_ADMIN_TOKEN", "CHATX_DB_PATH", "WAHA_API_URL", "WAHA_API_KEY",
	"CHATX_WHATSAPP_WEBHOOK_SECRET", "TELEGRAM_API_URL", "PORT", "CHATX_ENV",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvVars {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, constants.DefaultWhatsAppAPIBaseURL, cfg.WhatsApp.APIBaseURL)
	assert.Equal(t, constants.DefaultTelegramAPIBaseURL, cfg.Telegram.APIBaseURL)
	assert.Equal(t, constants.DefaultQRSizePixels, cfg.Telegram.QRSizePixels)
	assert.Equal(t, constants.DefaultCircuitMaxFailures, cfg.Telegram.CircuitMaxFails)
	assert.Equal(t, constants.DefaultQRTTLSec, cfg.Session.QRTTLSec)
	assert.Equal(t, constants.DefaultMaxConcurrentReconnects, cfg.Session.MaxConcurrentReconnects)
	assert.Equal(t, constants.DefaultReconnectMaxAttempts, cfg.Session.Backoff.MaxAttempts)
	assert.Equal(t, constants.DefaultReconnectMultiplier, cfg.Session.Backoff.Multiplier)
	assert.Equal(t, constants.DefaultRecoveryDelaySec, cfg.Session.RecoveryDelaySec)
	assert.Equal(t, constants.DefaultSubscriberBufferSize, cfg.Events.SubscriberBuffer)
	assert.Equal(t, "chatx", cfg.Tracing.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_FileValues(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"server": {"port": 9000, "admin_token": "file-token", "trusted_proxies": ["10.0.0.0/8"]},
		"database": {"path": "data/sessions.db"},
		"whatsapp": {"api_base_url": "https://waha.internal:3000", "qr_size_px": 512},
		"telegram": {"qr_size_px": 128, "circuit_max_failures": 9},
		"session": {
			"qr_ttl_sec": 30,
			"max_concurrent_reconnects": 7,
			"recovery_delay_sec": -1,
			"backoff": {"initial_backoff_ms": 200, "max_backoff_ms": 4000, "multiplier": 1.5, "max_attempts": 4}
		},
		"log_level": "warn"
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "file-token", cfg.Server.AdminToken)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Server.TrustedProxies)
	assert.Equal(t, "data/sessions.db", cfg.Database.Path)
	assert.Equal(t, 512, cfg.WhatsApp.QRSizePixels)
	assert.Equal(t, 128, cfg.Telegram.QRSizePixels, "providers are sized independently")
	assert.Equal(t, 9, cfg.Telegram.CircuitMaxFails)
	assert.Equal(t, constants.DefaultCircuitMaxFailures, cfg.WhatsApp.CircuitMaxFails)
	assert.Equal(t, 30, cfg.Session.QRTTLSec)
	assert.Equal(t, 7, cfg.Session.MaxConcurrentReconnects)
	assert.Equal(t, 0, cfg.Session.RecoveryDelaySec, "negative delay disables the wait")
	assert.Equal(t, models.BackoffConfig{InitialBackoffMs: 200, MaxBackoffMs: 4000, Multiplier: 1.5, MaxAttempts: 4}, cfg.Session.Backoff)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATX_ADMIN_TOKEN", "env-token")
	t.Setenv("CHATX_DB_PATH", "/var/lib/chatx/chatx.db")
	t.Setenv("WAHA_API_URL", "http://waha:3000")
	t.Setenv("WAHA_API_KEY", "waha-key")
	t.Setenv("TELEGRAM_API_URL", "http://telegram-proxy:8081")
	t.Setenv("PORT", "8099")

	path := writeConfig(t, `{"server": {"admin_token": "file-token"}}`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Server.AdminToken)
	assert.Equal(t, "/var/lib/chatx/chatx.db", cfg.Database.Path)
	assert.Equal(t, "http://waha:3000", cfg.WhatsApp.APIBaseURL)
	assert.Equal(t, "waha-key", cfg.WhatsApp.APIKey)
	assert.Equal(t, "http://telegram-proxy:8081", cfg.Telegram.APIBaseURL)
	assert.Equal(t, 8099, cfg.Server.Port)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		errMsg  string
	}{
		{name: "malformed json", content: `{`, errMsg: "failed to parse config"},
		{name: "port out of range", content: `{"server": {"port": 70000}}`, errMsg: "server port"},
		{name: "bad PORT env", content: `{}`, env: map[string]string{"PORT": "http"}, errMsg: "invalid PORT"},
		{name: "bad whatsapp url", content: `{"whatsapp": {"api_base_url": "waha:3000"}}`, errMsg: "WhatsApp API URL"},
		{name: "bad telegram url", content: `{"telegram": {"api_base_url": "ftp://x"}}`, errMsg: "Telegram API URL"},
		{name: "multiplier below one", content: `{"session": {"backoff": {"multiplier": 0.5}}}`, errMsg: "multiplier"},
		{name: "max below initial", content: `{"session": {"backoff": {"initial_backoff_ms": 5000, "max_backoff_ms": 100}}}`, errMsg: "max_backoff_ms"},
		{name: "traversal db path", content: `{"database": {"path": "../../etc/chatx.db"}}`, errMsg: "invalid database path"},
		{name: "sample rate", content: `{"tracing": {"sample_rate": 2}}`, errMsg: "sample_rate"},
		{name: "log level", content: `{"log_level": "loud"}`, errMsg: "invalid log_level"},
		{name: "timeout too large", content: `{"server": {"read_timeout_sec": 7200}}`, errMsg: "server.read_timeout_sec too large"},
		{name: "reconnect slots", content: `{"session": {"max_concurrent_reconnects": 1000}}`, errMsg: "max_concurrent_reconnects must be between"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfig_InvalidPath(t *testing.T) {
	_, err := LoadConfig("../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfig_ProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATX_ENV", EnvProduction)

	_, err := LoadConfig(writeConfig(t, `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin token")

	t.Setenv("CHATX_ADMIN_TOKEN", "0123456789abcdef0123456789abcdef")
	_, err = LoadConfig(writeConfig(t, `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook secret")

	t.Setenv("CHATX_WHATSAPP_WEBHOOK_SECRET", "fedcba9876543210fedcba9876543210")
	_, err = LoadConfig(writeConfig(t, `{"log_level": "debug"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug logging")

	cfg, err := LoadConfig(writeConfig(t, `{}`))
	require.NoError(t, err)
	assert.True(t, IsProduction())
	assert.NotEmpty(t, cfg.WhatsApp.WebhookSecret)
}
