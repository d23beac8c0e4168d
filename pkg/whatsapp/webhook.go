package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/XOOChatx/Chat-X/pkg/whatsapp/types"
)

// ErrUnhandledEvent is returned for event names with no registered handler
var ErrUnhandledEvent = errors.New("no handler registered for event type")

type webhookHandler struct {
	handlers map[string]func(context.Context, string, json.RawMessage) error
	mu       sync.RWMutex
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler() WebhookHandler {
	return &webhookHandler{
		handlers: make(map[string]func(context.Context, string, json.RawMessage) error),
	}
}

func (wh *webhookHandler) Handle(ctx context.Context, event *types.WebhookEvent) error {
	wh.mu.RLock()
	handler, exists := wh.handlers[event.Event]
	wh.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Event)
	}

	return handler(ctx, event.Session, event.Payload)
}

func (wh *webhookHandler) RegisterEventHandler(eventType string, handler func(context.Context, string, json.RawMessage) error) {
	wh.mu.Lock()
	defer wh.mu.Unlock()

	wh.handlers[eventType] = handler
}

// ParseWebhookEvent decodes a webhook body. The session name is required
// since every event the connector cares about is session scoped.
func ParseWebhookEvent(body []byte) (*types.WebhookEvent, error) {
	var event types.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook event: %w", err)
	}
	if event.Event == "" {
		return nil, errors.New("webhook event name is required")
	}
	if event.Session == "" {
		return nil, errors.New("webhook session is required")
	}
	return &event, nil
}

// DecodeStatus decodes a session.status payload
func DecodeStatus(payload json.RawMessage) (types.SessionStatus, error) {
	var p types.StatusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("failed to unmarshal status payload: %w", err)
	}
	status := p.Status.Normalize()
	if status == "" {
		return "", errors.New("status payload has no status")
	}
	return status, nil
}

// DecodeMessage decodes a message payload
func DecodeMessage(payload json.RawMessage) (*types.MessagePayload, error) {
	var msg types.MessagePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message payload: %w", err)
	}
	return &msg, nil
}
