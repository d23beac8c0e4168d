package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/XOOChatx/Chat-X/internal/constants"
	apperrors "github.com/XOOChatx/Chat-X/internal/errors"
	"github.com/XOOChatx/Chat-X/internal/httputil"
	"github.com/XOOChatx/Chat-X/internal/security"
	"github.com/XOOChatx/Chat-X/internal/session"
	"github.com/XOOChatx/Chat-X/internal/tracing"
	"github.com/XOOChatx/Chat-X/pkg/connector"
	waha "github.com/XOOChatx/Chat-X/pkg/whatsapp"
)

const maxCreateBodyBytes = 16 << 10

type createSessionRequest struct {
	SessionID   string `json:"sessionId"`
	Provider    string `json:"provider"`
	Credentials string `json:"credentials"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"sessions":    s.manager.CountByState(r.Context()),
			"subscribers": s.manager.Events().SubscriberCount(),
		})
	}
}

func (s *Server) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCreateBodyBytes))
		if err != nil {
			httputil.WriteError(w, r, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "failed to read request body"))
			return
		}
		// An empty body creates a WhatsApp session with a generated id
		if len(strings.TrimSpace(string(body))) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				httputil.WriteError(w, r, apperrors.NewValidationError("body", "", "must be a JSON object"))
				return
			}
		}

		id, err := s.manager.CreateSession(r.Context(), session.CreateRequest{
			ID:          strings.TrimSpace(req.SessionID),
			Provider:    connector.Provider(strings.ToLower(strings.TrimSpace(req.Provider))),
			Credentials: req.Credentials,
		})
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"sessionId": id})
	}
}

func (s *Server) handleLoginQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionIDParam(r)
		if !ok {
			httputil.WriteError(w, r, apperrors.NewMissingSessionIDError())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.cfg.Server.QRRequestTimeoutSec)*time.Second)
		defer cancel()

		result, err := s.manager.GetOrCreateQR(ctx, id)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"session_id": id,
				"request_id": tracing.GetRequestID(r.Context()),
				"error":      err,
			}).Warn("QR request failed")
			httputil.WriteError(w, r, err)
			return
		}
		if result.Pending || result.Challenge == nil {
			httputil.WriteJSON(w, http.StatusAccepted, map[string]bool{"pending": true})
			return
		}

		resp := map[string]interface{}{"dataUrl": result.Challenge.Payload}
		if !result.Challenge.ExpiresAt.IsZero() {
			resp["expiresAt"] = result.Challenge.ExpiresAt
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleLoginStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionIDParam(r)
		if !ok {
			httputil.WriteError(w, r, apperrors.NewMissingSessionIDError())
			return
		}

		status, err := s.manager.GetStatus(r.Context(), id)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"status":  status.State,
			"session": status,
		})
	}
}

func (s *Server) handleConnectedSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"sessions": s.manager.ListConnected(r.Context()),
		})
	}
}

func (s *Server) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"sessions": s.manager.List(r.Context()),
		})
	}
}

func (s *Server) handleStopSession() http.HandlerFunc {
	return s.sessionAction(s.manager.Stop)
}

func (s *Server) handleResetSession() http.HandlerFunc {
	return s.sessionAction(s.manager.Reset)
}

func (s *Server) handleReconnectSession() http.HandlerFunc {
	return s.sessionAction(s.manager.Reconnect)
}

// sessionAction runs op against the {id} route variable
func (s *Server) sessionAction(op func(ctx context.Context, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := op(r.Context(), id); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

func (s *Server) handleWhatsAppWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := security.VerifyWebhook(
			r,
			s.cfg.WhatsApp.WebhookSecret,
			time.Duration(s.cfg.Server.WebhookMaxSkewSec)*time.Second,
			constants.MaxWebhookBodyBytes,
			s.now(),
		)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"request_id": tracing.GetRequestID(r.Context()),
				"remote_ip":  s.ips.ClientIP(r),
				"error":      err,
			}).Warn("Rejected WhatsApp webhook")
			httputil.WriteError(w, r, apperrors.NewAuthError("invalid webhook signature"))
			return
		}

		event, err := waha.ParseWebhookEvent(body)
		if err != nil {
			httputil.WriteError(w, r, apperrors.NewValidationError("body", "", err.Error()))
			return
		}

		logger := s.logger.WithFields(logrus.Fields{
			"event":      event.Event,
			"session_id": event.Session,
		})

		err = s.webhooks.Handle(r.Context(), event)
		switch {
		case err == nil:
			httputil.WriteJSON(w, http.StatusOK, okResponse{OK: true})
		case errors.Is(err, waha.ErrUnhandledEvent), errors.Is(err, apperrors.ErrUnknownSession):
			// Acknowledge so the gateway does not retry events nobody wants
			logger.Debug("Ignoring WhatsApp webhook")
			httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true, "ignored": true})
		default:
			logger.WithError(err).Warn("Failed to handle WhatsApp webhook")
			httputil.WriteError(w, r, apperrors.NewValidationError("payload", "", err.Error()))
		}
	}
}

// sessionIDParam reads ?sessionId=. Browsers sometimes send the literal
// string "undefined" for a missing value.
func sessionIDParam(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if id == "" || id == "undefined" {
		return "", false
	}
	return id, true
}
