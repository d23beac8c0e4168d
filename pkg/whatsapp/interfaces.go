package whatsapp

import (
	"context"
	"encoding/json"

	"github.com/XOOChatx/Chat-X/pkg/circuitbreaker"
	"github.com/XOOChatx/Chat-X/pkg/whatsapp/types"
)

// SessionAPI is the gateway session lifecycle used by the connector
type SessionAPI interface {
	Create(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*types.Session, error)
	// QR returns the raw challenge string of a session waiting for a scan
	QR(ctx context.Context, name string) (string, error)
	Breaker() *circuitbreaker.CircuitBreaker
}

// WebhookHandler dispatches incoming webhook events by event name
type WebhookHandler interface {
	Handle(ctx context.Context, event *types.WebhookEvent) error
	RegisterEventHandler(eventType string, handler func(ctx context.Context, session string, payload json.RawMessage) error)
}
