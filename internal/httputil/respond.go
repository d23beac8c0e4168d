package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/XOOChatx/Chat-X/internal/errors"
	"github.com/XOOChatx/Chat-X/internal/tracing"
)

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto its HTTP status and the standard error body.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	WriteJSON(w, apperrors.HTTPStatusCode(err), apperrors.ToHTTPResponse(err, tracing.GetRequestID(r.Context())))
}
