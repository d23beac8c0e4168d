package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/XOOChatx/Chat-X/internal/errors"
	"github.com/XOOChatx/Chat-X/internal/events"
	"github.com/XOOChatx/Chat-X/internal/metrics"
	"github.com/XOOChatx/Chat-X/internal/retry"
	"github.com/XOOChatx/Chat-X/pkg/connector"
)

// record is the registry entry for one session. Every mutable field is
// guarded by mu; id, provider and credentials never change.
type record struct {
	mu sync.Mutex

	id          string
	provider    connector.Provider
	credentials string

	state             State
	createdAt         time.Time
	updatedAt         time.Time
	lastSeenAt        time.Time
	reconnectAttempts int
	lastError         string

	adapter    connector.Adapter
	started    bool
	generation uint64
	challenge  *connector.Challenge

	ctx          context.Context
	cancel       context.CancelFunc
	removed      bool
	reconnecting bool
	probing      bool
}

// Status is a consistent snapshot of one session
type Status struct {
	ID                 string             `json:"session_id"`
	Provider           connector.Provider `json:"provider"`
	State              State              `json:"state"`
	LastSeenAt         *time.Time         `json:"last_seen_at,omitempty"`
	ReconnectAttempts  int                `json:"reconnect_attempts"`
	LastError          string             `json:"last_error,omitempty"`
	ChallengeExpiresAt *time.Time         `json:"challenge_expires_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Summary describes a connected session
type Summary struct {
	ID         string             `json:"session_id"`
	Provider   connector.Provider `json:"provider"`
	LastSeenAt *time.Time         `json:"last_seen_at,omitempty"`
}

// Registry is the concurrency-safe map of live sessions. The map lock is
// only held for lookup, insert and delete; state changes happen under the
// record's own lock.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*record

	events *events.Broadcaster
	clock  retry.Clock
	logger *logrus.Logger
}

// NewRegistry creates an empty registry publishing to broadcaster
func NewRegistry(broadcaster *events.Broadcaster, clock retry.Clock, logger *logrus.Logger) *Registry {
	return &Registry{
		records: make(map[string]*record),
		events:  broadcaster,
		clock:   clock,
		logger:  logger,
	}
}

// insertLocked adds rec, which the caller must hold locked, and announces it
func (r *Registry) insertLocked(rec *record) error {
	r.mu.Lock()
	if _, exists := r.records[rec.id]; exists {
		r.mu.Unlock()
		return apperrors.NewDuplicateSessionError(rec.id)
	}
	r.records[rec.id] = rec
	r.mu.Unlock()

	metrics.RecordTransition("", string(rec.state))
	r.publishLocked(rec, events.KindStateChanged, nil)
	return nil
}

func (r *Registry) lookup(id string) (*record, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewUnknownSessionError(id)
	}
	return rec, nil
}

// remove deletes id from the map and returns the detached record, or nil
func (r *Registry) remove(id string) *record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil
	}
	delete(r.records, id)
	return rec
}

// all returns the current records ordered by id
func (r *Registry) all() []*record {
	r.mu.RLock()
	out := make([]*record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// transitionLocked moves rec to state `to` if the edge exists and publishes
// the matching event. The caller holds rec.mu.
func (r *Registry) transitionLocked(rec *record, to State, payload map[string]interface{}) error {
	return r.transitionAsLocked(rec, to, kindFor(rec.state, to), payload)
}

// transitionAsLocked is transitionLocked with an explicit event kind
func (r *Registry) transitionAsLocked(rec *record, to State, kind events.Kind, payload map[string]interface{}) error {
	from := rec.state
	if !CanTransition(from, to) {
		r.logger.WithFields(logrus.Fields{
			LogFieldSession:   rec.id,
			LogFieldFromState: from,
			LogFieldState:     to,
		}).Warn("Rejected illegal session transition")
		return apperrors.NewInvalidStateError(rec.id, string(from), "move to "+string(to))
	}

	rec.state = to
	rec.updatedAt = r.clock.Now()
	metrics.RecordTransition(string(from), string(to))

	r.logger.WithFields(logrus.Fields{
		LogFieldSession:   rec.id,
		LogFieldProvider:  rec.provider,
		LogFieldFromState: from,
		LogFieldState:     to,
	}).Info("Session state changed")

	r.publishLocked(rec, kind, payload)
	return nil
}

// retireLocked announces that rec has left the registry
func (r *Registry) retireLocked(rec *record) {
	metrics.RecordTransition(string(rec.state), "")
	r.publishLocked(rec, events.KindSessionRemoved, nil)
}

func (r *Registry) publishLocked(rec *record, kind events.Kind, payload map[string]interface{}) {
	r.events.Publish(events.Event{
		SessionID: rec.id,
		Kind:      kind,
		State:     string(rec.state),
		Payload:   payload,
		Timestamp: r.clock.Now(),
	})
}

func kindFor(from, to State) events.Kind {
	switch to {
	case StateQRReady:
		return events.KindChallengeReady
	case StateConnected:
		return events.KindConnected
	case StateDisconnected:
		return events.KindDisconnected
	case StateFailed:
		if from == StateReconnecting {
			return events.KindRetryExhausted
		}
	}
	return events.KindStateChanged
}

func (rec *record) statusLocked() Status {
	st := Status{
		ID:                rec.id,
		Provider:          rec.provider,
		State:             rec.state,
		ReconnectAttempts: rec.reconnectAttempts,
		LastError:         rec.lastError,
		CreatedAt:         rec.createdAt,
		UpdatedAt:         rec.updatedAt,
	}
	if !rec.lastSeenAt.IsZero() {
		seen := rec.lastSeenAt
		st.LastSeenAt = &seen
	}
	if rec.challenge != nil && !rec.challenge.ExpiresAt.IsZero() {
		exp := rec.challenge.ExpiresAt
		st.ChallengeExpiresAt = &exp
	}
	return st
}

func challengePayload(ch *connector.Challenge) map[string]interface{} {
	if ch == nil {
		return nil
	}
	return map[string]interface{}{
		"challenge":  ch.Payload,
		"issued_at":  ch.IssuedAt,
		"expires_at": ch.ExpiresAt,
	}
}
