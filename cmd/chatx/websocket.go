package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"

	apperrors "github.com/XOOChatx/Chat-X/internal/errors"
	"github.com/XOOChatx/Chat-X/internal/httputil"
	"github.com/XOOChatx/Chat-X/internal/security"
	"github.com/XOOChatx/Chat-X/internal/tracing"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	// eventsTokenParam carries the admin token for browser clients, which
	// cannot set headers on the handshake
	eventsTokenParam = "token"
)

// handleEvents streams session events over a WebSocket. ?sessionId=
// narrows the stream to one session.
func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if expected := s.cfg.Server.AdminToken; expected != "" {
			token := security.TokenFromRequest(r)
			if token == "" {
				token = r.URL.Query().Get(eventsTokenParam)
			}
			if !security.TokenMatches(expected, token) {
				httputil.WriteError(w, r, apperrors.NewAuthError("invalid admin token"))
				return
			}
		}

		// The stream outlives the server's per-request deadlines
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns(s.cfg.Server.AllowedEventsOrigins),
		})
		if err != nil {
			// Accept has already written the HTTP error
			s.logger.WithFields(logrus.Fields{
				"request_id": tracing.GetRequestID(r.Context()),
				"error":      err,
			}).Warn("Rejected event stream handshake")
			return
		}
		defer conn.CloseNow()

		filter := strings.TrimSpace(r.URL.Query().Get("sessionId"))
		sub := s.manager.Events().Subscribe(0)
		defer s.manager.Events().Unsubscribe(sub)

		logger := s.logger.WithFields(logrus.Fields{
			"subscriber_id": sub.ID(),
			"session_id":    filter,
			"remote_ip":     s.ips.ClientIP(r),
		})
		logger.Info("Event stream opened")

		// Clients only listen; CloseRead handles control frames and ends ctx
		// when the peer goes away
		ctx := conn.CloseRead(r.Context())
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.WithField("dropped", sub.Dropped()).Info("Event stream closed by client")
				return
			case <-ping.C:
				pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
				err := conn.Ping(pingCtx)
				cancel()
				if err != nil {
					logger.WithError(err).Debug("Event stream ping failed")
					return
				}
			case evt, ok := <-sub.Events():
				if !ok {
					conn.Close(websocket.StatusGoingAway, "server shutting down")
					return
				}
				if filter != "" && evt.SessionID != filter {
					continue
				}
				writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
				err := wsjson.Write(writeCtx, conn, evt)
				cancel()
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						logger.WithError(err).Warn("Failed to write event")
					}
					return
				}
			}
		}
	}
}

// originPatterns turns configured origins into the host patterns the
// handshake check matches against
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		o = strings.TrimRight(o, "/")
		if o != "" {
			patterns = append(patterns, o)
		}
	}
	return patterns
}
