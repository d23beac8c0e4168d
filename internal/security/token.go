package security

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminTokenHeader is the alternative to a bearer Authorization header
const AdminTokenHeader = "X-Admin-Token"

// TokenFromRequest returns the admin token presented on r, preferring a
// bearer Authorization header over X-Admin-Token.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(AdminTokenHeader))
}

// TokenMatches compares tokens in constant time. An empty expected token
// never matches.
func TokenMatches(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
