// Package connector defines the capability set every messaging provider
// adapter satisfies. An adapter owns exactly one provider client for one
// session and reports lifecycle changes through an EventSink.
package connector

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider identifies a messaging platform
type Provider string

const (
	ProviderWhatsApp Provider = "whatsapp"
	ProviderTelegram Provider = "telegram"
)

// ParseProvider validates a provider name. Empty input selects WhatsApp,
// matching the default session type of the HTTP API.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case "", ProviderWhatsApp:
		return ProviderWhatsApp, nil
	case ProviderTelegram:
		return ProviderTelegram, nil
	default:
		return "", fmt.Errorf("unsupported provider: %q", s)
	}
}

// ErrChallengeUnavailable is returned by QRChallenge while the provider has
// not produced a challenge yet. Callers treat it as "pending".
var ErrChallengeUnavailable = errors.New("challenge not yet available")

// ErrNotStarted is returned by calls that need a running client
var ErrNotStarted = errors.New("adapter not started")

// Challenge is an authentication payload a human presents to the provider.
// Payload is opaque to the session layer.
type Challenge struct {
	Payload   string    `json:"payload"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the challenge validity window has elapsed at now
func (c *Challenge) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// LinkStatus is the provider-side connection state as seen by the adapter
type LinkStatus string

const (
	LinkStopped      LinkStatus = "stopped"
	LinkStarting     LinkStatus = "starting"
	LinkAwaitingScan LinkStatus = "awaiting_scan"
	LinkConnected    LinkStatus = "connected"
	LinkFailed       LinkStatus = "failed"
)

// EventKind enumerates adapter-originated lifecycle events
type EventKind string

const (
	EventChallenge    EventKind = "challenge"
	EventScanned      EventKind = "scanned"
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventMessage      EventKind = "message"
)

// Event is reported by an adapter. Challenge is set for EventChallenge, Err
// for EventDisconnected and Payload carries provider data for EventMessage.
type Event struct {
	Kind      EventKind
	Challenge *Challenge
	Err       error
	Payload   map[string]interface{}
	At        time.Time
}

// EventSink receives adapter events. Implementations must not block.
type EventSink func(Event)

// Adapter is the uniform capability set over a provider client.
type Adapter interface {
	// Start launches the underlying client. It must be safe to call Stop
	// afterwards even if Start failed.
	Start(ctx context.Context) error
	// Stop tears the client down and releases its resources.
	Stop(ctx context.Context) error
	// QRChallenge returns the current challenge or ErrChallengeUnavailable.
	QRChallenge(ctx context.Context) (*Challenge, error)
	// Status returns the provider-side link state.
	Status(ctx context.Context) (LinkStatus, error)
	// Probe issues a lightweight liveness check.
	Probe(ctx context.Context) error
}

// Spec carries what a factory needs to build an adapter for one session
type Spec struct {
	SessionID   string
	Provider    Provider
	Credentials string
	Sink        EventSink
}

// Factory builds a fresh adapter for a session
type Factory interface {
	New(spec Spec) (Adapter, error)
}

// FactoryFunc adapts a function to the Factory interface
type FactoryFunc func(spec Spec) (Adapter, error)

// New calls f(spec)
func (f FactoryFunc) New(spec Spec) (Adapter, error) {
	return f(spec)
}

// Registry dispatches to a per-provider factory
type Registry map[Provider]Factory

// New builds an adapter using the factory registered for spec.Provider
func (r Registry) New(spec Spec) (Adapter, error) {
	f, ok := r[spec.Provider]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", spec.Provider)
	}
	return f.New(spec)
}
