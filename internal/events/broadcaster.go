// Package events fans session lifecycle and message events out to any
// number of subscribers without ever blocking the publisher.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/XOOChatx/Chat-X/internal/constants"
	"github.com/XOOChatx/Chat-X/internal/metrics"
)

// Kind identifies an event type
type Kind string

const (
	KindStateChanged    Kind = "state_changed"
	KindChallengeReady  Kind = "challenge_ready"
	KindConnected       Kind = "connected"
	KindDisconnected    Kind = "disconnected"
	KindMessageReceived Kind = "message_received"
	KindRetryExhausted  Kind = "retry_exhausted"
	KindSessionRemoved  Kind = "session_removed"
)

// Event is delivered to subscribers as published
type Event struct {
	SessionID string                 `json:"session_id"`
	Kind      Kind                   `json:"kind"`
	State     string                 `json:"state,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Subscription is a registered event stream
type Subscription struct {
	id      string
	ch      chan Event
	dropped atomic.Uint64
}

// ID returns the subscription identifier
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the receive side of the stream. It is closed on Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded because the buffer was full
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Broadcaster publishes events to all current subscribers
type Broadcaster struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	bufferSize int
	logger     *logrus.Logger
	closed     bool
}

// NewBroadcaster creates a broadcaster whose subscriptions default to
// bufferSize slots.
func NewBroadcaster(bufferSize int, logger *logrus.Logger) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = constants.DefaultSubscriberBufferSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Broadcaster{
		subs:       make(map[string]*Subscription),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe registers a new subscriber. A non-positive buffer uses the
// broadcaster default.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = b.bufferSize
	}
	sub := &Subscription{
		id: uuid.NewString(),
		ch: make(chan Event, buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	metrics.Subscribers.Inc()

	b.logger.WithFields(logrus.Fields{
		"subscriber_id": sub.id,
		"buffer":        buffer,
	}).Debug("Event subscriber registered")
	return sub
}

// Unsubscribe removes the subscriber and closes its stream. Unknown or
// already removed subscriptions are ignored.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
	metrics.Subscribers.Dec()

	b.logger.WithFields(logrus.Fields{
		"subscriber_id": sub.id,
		"dropped":       sub.Dropped(),
	}).Debug("Event subscriber removed")
}

// Publish delivers the event to every subscriber that has buffer space and
// counts a drop for every one that does not.
func (b *Broadcaster) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	metrics.EventsPublished.WithLabelValues(string(evt.Kind)).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
			metrics.EventsDropped.Inc()
		}
	}
}

// SubscriberCount returns the number of live subscribers
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes everyone. Later Subscribe calls return closed streams.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
		metrics.Subscribers.Dec()
	}
}
