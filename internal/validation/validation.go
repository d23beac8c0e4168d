package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/XOOChatx/Chat-X/internal/constants"
	"github.com/XOOChatx/Chat-X/internal/errors"
	"github.com/XOOChatx/Chat-X/pkg/connector"
)

var (
	sessionIDPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	telegramTokenPattern = regexp.MustCompile(`^[0-9]+:[A-Za-z0-9_-]+$`)
)

// ValidateSessionID checks a caller-chosen session id. Ids become gateway
// session names and URL path segments, so only a conservative alphabet is
// accepted.
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.NewValidationError("session_id", id, "cannot be empty")
	}
	if len(id) > constants.MaxSessionIDLength {
		return errors.NewValidationError("session_id", id,
			fmt.Sprintf("too long (max %d characters)", constants.MaxSessionIDLength))
	}
	if !sessionIDPattern.MatchString(id) {
		return errors.NewValidationError("session_id", id, "must start with a letter or digit and contain only letters, digits, '.', '_' and '-'")
	}
	return nil
}

// ValidateCredentials checks the provider credentials supplied on create.
// WhatsApp sessions pair by QR and take none; Telegram sessions need a bot
// token.
func ValidateCredentials(provider connector.Provider, credentials string) error {
	switch provider {
	case connector.ProviderTelegram:
		token := strings.TrimSpace(credentials)
		if token == "" {
			return errors.NewValidationError("credentials", "", "telegram sessions require a bot token")
		}
		if !telegramTokenPattern.MatchString(token) {
			// never echo the token back
			return errors.NewValidationError("credentials", "", "malformed telegram bot token")
		}
	}
	return nil
}

// ValidateNumericRange validates that a number is within range
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min || value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be between %d and %d", fieldName, min, max))
	}
	return nil
}

// ValidateTimeout validates timeout values in seconds
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec <= 0 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be positive", fieldName))
	}
	if timeoutSec > 3600 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 1 hour)", fieldName))
	}
	return nil
}
