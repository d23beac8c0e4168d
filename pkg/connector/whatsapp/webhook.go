package whatsapp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/XOOChatx/Chat-X/pkg/connector"
	waha "github.com/XOOChatx/Chat-X/pkg/whatsapp"
	"github.com/XOOChatx/Chat-X/pkg/whatsapp/types"
)

// RouteFunc delivers a translated event to the session it names
type RouteFunc func(sessionID string, evt connector.Event) error

// NewWebhookHandler returns a gateway webhook dispatcher that translates
// session.status and message events and hands them to route. Statuses
// that need no action, like STARTING, are dropped.
func NewWebhookHandler(route RouteFunc, now func() time.Time) waha.WebhookHandler {
	if now == nil {
		now = time.Now
	}
	handler := waha.NewWebhookHandler()

	handler.RegisterEventHandler(types.EventSessionStatus, func(ctx context.Context, session string, payload json.RawMessage) error {
		status, err := waha.DecodeStatus(payload)
		if err != nil {
			return err
		}
		evt, ok := statusEvent(status, now())
		if !ok {
			return nil
		}
		return route(session, evt)
	})

	onMessage := func(ctx context.Context, session string, payload json.RawMessage) error {
		msg, err := waha.DecodeMessage(payload)
		if err != nil {
			return err
		}
		return route(session, connector.Event{
			Kind:    connector.EventMessage,
			Payload: messagePayload(msg),
			At:      now(),
		})
	}
	handler.RegisterEventHandler(types.EventMessage, onMessage)
	handler.RegisterEventHandler(types.EventMessageAny, onMessage)

	return handler
}

// statusEvent maps a pushed status to an event. STOPPED is not mapped:
// the gateway pushes it for our own Stop calls as well, and a real link
// loss on a live session is caught by polling and probes.
func statusEvent(status types.SessionStatus, at time.Time) (connector.Event, bool) {
	switch status {
	case types.SessionStatusWorking:
		return connector.Event{Kind: connector.EventConnected, At: at}, true
	case types.SessionStatusFailed:
		return connector.Event{Kind: connector.EventDisconnected, Err: errGatewayFailed, At: at}, true
	default:
		return connector.Event{}, false
	}
}

func messagePayload(msg *types.MessagePayload) map[string]interface{} {
	payload := map[string]interface{}{
		"id":       msg.ID,
		"from":     msg.From,
		"body":     msg.Body,
		"from_me":  msg.FromMe,
		"is_group": msg.IsGroupMessage(),
	}
	if msg.To != "" {
		payload["to"] = msg.To
	}
	if msg.Timestamp > 0 {
		payload["timestamp"] = msg.Timestamp
	}
	if msg.HasMedia {
		payload["has_media"] = true
	}
	return payload
}
