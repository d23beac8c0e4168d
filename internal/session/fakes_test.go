package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/XOOChatx/Chat-X/internal/events"
	"github.com/XOOChatx/Chat-X/internal/models"
	"github.com/XOOChatx/Chat-X/internal/retry"
	"github.com/XOOChatx/Chat-X/pkg/connector"
)

// fakeAdapter answers with the hooks it was configured with and defaults to
// a healthy, already linked provider.
type fakeAdapter struct {
	spec connector.Spec

	startFn  func(ctx context.Context) error
	qrFn     func(ctx context.Context) (*connector.Challenge, error)
	statusFn func(ctx context.Context) (connector.LinkStatus, error)
	probeFn  func(ctx context.Context) error

	starts  atomic.Int32
	qrCalls atomic.Int32
	probes  atomic.Int32
	stopped atomic.Bool
}

func (a *fakeAdapter) Start(ctx context.Context) error {
	a.starts.Add(1)
	if a.startFn != nil {
		return a.startFn(ctx)
	}
	return nil
}

func (a *fakeAdapter) Stop(ctx context.Context) error {
	a.stopped.Store(true)
	return nil
}

func (a *fakeAdapter) QRChallenge(ctx context.Context) (*connector.Challenge, error) {
	n := a.qrCalls.Add(1)
	if a.qrFn != nil {
		return a.qrFn(ctx)
	}
	return &connector.Challenge{Payload: fmt.Sprintf("qr-%s-%d", a.spec.SessionID, n)}, nil
}

func (a *fakeAdapter) Status(ctx context.Context) (connector.LinkStatus, error) {
	if a.statusFn != nil {
		return a.statusFn(ctx)
	}
	return connector.LinkConnected, nil
}

func (a *fakeAdapter) Probe(ctx context.Context) error {
	a.probes.Add(1)
	if a.probeFn != nil {
		return a.probeFn(ctx)
	}
	return nil
}

func (a *fakeAdapter) emit(kind connector.EventKind) {
	a.spec.Sink(connector.Event{Kind: kind})
}

// fakeFactory records every adapter it builds per session
type fakeFactory struct {
	mu        sync.Mutex
	configure func(a *fakeAdapter)
	adapters  map[string][]*fakeAdapter
}

func newFakeFactory(configure func(a *fakeAdapter)) *fakeFactory {
	return &fakeFactory{configure: configure, adapters: make(map[string][]*fakeAdapter)}
}

func (f *fakeFactory) New(spec connector.Spec) (connector.Adapter, error) {
	a := &fakeAdapter{spec: spec}
	if f.configure != nil {
		f.configure(a)
	}
	f.mu.Lock()
	f.adapters[spec.SessionID] = append(f.adapters[spec.SessionID], a)
	f.mu.Unlock()
	return a, nil
}

func (f *fakeFactory) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.adapters[id])
}

func (f *fakeFactory) latest(id string) *fakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.adapters[id]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (f *fakeFactory) all(id string) []*fakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeAdapter(nil), f.adapters[id]...)
}

// memoryStore is an in-memory Store
type memoryStore struct {
	mu      sync.Mutex
	records map[string]models.SessionRecord
	order   []string
	deletes []string
}

func newMemoryStore(recs ...models.SessionRecord) *memoryStore {
	s := &memoryStore{records: make(map[string]models.SessionRecord)}
	for _, r := range recs {
		s.records[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	return s
}

func (s *memoryStore) SaveSession(ctx context.Context, rec models.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *memoryStore) MarkAuthenticated(ctx context.Context, id string, authenticated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	rec.Authenticated = authenticated
	s.records[id] = rec
	return nil
}

func (s *memoryStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	s.deletes = append(s.deletes, id)
	return nil
}

func (s *memoryStore) ListSessions(ctx context.Context) ([]models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SessionRecord
	for _, id := range s.order {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memoryStore) get(id string) (models.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// steppedClock reports a manually advanced Now while After uses real time
type steppedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppedClock() *steppedClock {
	return &steppedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppedClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (c *steppedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var _ retry.Clock = (*steppedClock)(nil)

func testOptions() Options {
	return Options{
		QRTTL:                   time.Minute,
		QRRequestTimeout:        time.Second,
		MaxConcurrentReconnects: 3,
		AttemptTimeout:          500 * time.Millisecond,
		ReadyPollInterval:       5 * time.Millisecond,
		Backoff: retry.BackoffConfig{
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
			MaxAttempts:  3,
		},
		HealthInterval:     time.Hour,
		ProbeTimeout:       100 * time.Millisecond,
		AdapterStopTimeout: 100 * time.Millisecond,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestManager(t *testing.T, factory connector.Factory, store Store, opts Options) *Manager {
	t.Helper()
	m := NewManager(factory, store, events.NewBroadcaster(256, quietLogger()), quietLogger(), opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m
}

func requireState(t *testing.T, m *Manager, id string, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := m.GetStatus(context.Background(), id)
		return err == nil && st.State == want
	}, 2*time.Second, 5*time.Millisecond, "session %s never reached %s", id, want)
}

// eventLog drains a subscription in the background
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
	done   chan struct{}
}

func recordEvents(b *events.Broadcaster) (*eventLog, func()) {
	sub := b.Subscribe(1024)
	l := &eventLog{done: make(chan struct{})}
	go func() {
		defer close(l.done)
		for evt := range sub.Events() {
			l.mu.Lock()
			l.events = append(l.events, evt)
			l.mu.Unlock()
		}
	}()
	return l, func() {
		b.Unsubscribe(sub)
		<-l.done
	}
}

func (l *eventLog) statesFor(id string) []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []State
	for _, evt := range l.events {
		if evt.SessionID != id || evt.Kind == events.KindMessageReceived || evt.Kind == events.KindSessionRemoved {
			continue
		}
		if n := len(out); n > 0 && out[n-1] == State(evt.State) {
			continue
		}
		out = append(out, State(evt.State))
	}
	return out
}

func (l *eventLog) kindsFor(id string) []events.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Kind
	for _, evt := range l.events {
		if evt.SessionID == id {
			out = append(out, evt.Kind)
		}
	}
	return out
}

// connectSession pairs a freshly created session through the QR flow
func connectSession(t *testing.T, m *Manager, f *fakeFactory, id string) {
	t.Helper()
	_, err := m.CreateSession(context.Background(), CreateRequest{ID: id})
	require.NoError(t, err)
	res, err := m.GetOrCreateQR(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, res.Challenge)
	f.latest(id).emit(connector.EventConnected)
	requireState(t, m, id, StateConnected)
}
