package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"

	apperrors "github.com/XOOChatx/Chat-X/internal/errors"
	"github.com/XOOChatx/Chat-X/internal/httputil"
	"github.com/XOOChatx/Chat-X/internal/security"
	"github.com/XOOChatx/Chat-X/internal/tracing"
)

// AdminAuth requires the configured admin token on every request except
// CORS preflights. An empty token leaves the routes open, which config
// validation only allows outside production.
func AdminAuth(token string, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if !security.TokenMatches(token, security.TokenFromRequest(r)) {
				logger.WithFields(logrus.Fields{
					LogFieldRequestID: tracing.GetRequestID(r.Context()),
					LogFieldURL:       r.URL.Path,
				}).Warn("Rejected request with missing or invalid admin token")
				httputil.WriteError(w, r, apperrors.NewAuthError("invalid admin token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
