package types

import (
	"encoding/json"
	"strings"
)

// SessionStatus is the gateway-side state of a session
type SessionStatus string

const (
	SessionStatusStopped   SessionStatus = "STOPPED"
	SessionStatusStarting  SessionStatus = "STARTING"
	SessionStatusScanQR    SessionStatus = "SCAN_QR_CODE"
	SessionStatusWorking   SessionStatus = "WORKING"
	SessionStatusFailed    SessionStatus = "FAILED"
	SessionStatusNotExists SessionStatus = ""
)

// Normalize upper-cases a status so lenient gateways compare equal
func (s SessionStatus) Normalize() SessionStatus {
	return SessionStatus(strings.ToUpper(strings.TrimSpace(string(s))))
}

// Me identifies the account a working session is logged in as
type Me struct {
	ID       string `json:"id"`
	PushName string `json:"pushName,omitempty"`
}

// Session represents a gateway session
type Session struct {
	Name   string        `json:"name"`
	Status SessionStatus `json:"status"`
	Me     *Me           `json:"me,omitempty"`
}

// CreateSessionRequest is the body of POST /api/sessions
type CreateSessionRequest struct {
	Name  string `json:"name"`
	Start bool   `json:"start"`
}

// QRResponse is returned by the raw QR endpoint
type QRResponse struct {
	Value string `json:"value"`
}

// WebhookEvent represents a webhook event from the gateway
type WebhookEvent struct {
	ID        string          `json:"id,omitempty"`
	Event     string          `json:"event"`
	Session   string          `json:"session"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// StatusPayload is the payload of a session.status event
type StatusPayload struct {
	Status SessionStatus `json:"status"`
}

// MessagePayload is the payload of a message event
type MessagePayload struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Body      string `json:"body"`
	FromMe    bool   `json:"fromMe"`
	Timestamp int64  `json:"timestamp"`
	HasMedia  bool   `json:"hasMedia,omitempty"`
}

// IsGroupMessage returns true if the message is from a group chat
func (m *MessagePayload) IsGroupMessage() bool {
	return strings.HasSuffix(m.From, "@g.us")
}

// ErrorResponse represents error responses from the gateway
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}
