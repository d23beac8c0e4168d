// Package session owns the lifecycle of messaging sessions: the registry and
// its state machine, QR challenge generation, reconnection after failures
// and periodic health probes.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/XOOChatx/Chat-X/internal/constants"
	apperrors "github.com/XOOChatx/Chat-X/internal/errors"
	"github.com/XOOChatx/Chat-X/internal/events"
	"github.com/XOOChatx/Chat-X/internal/metrics"
	"github.com/XOOChatx/Chat-X/internal/models"
	"github.com/XOOChatx/Chat-X/internal/privacy"
	"github.com/XOOChatx/Chat-X/internal/retry"
	"github.com/XOOChatx/Chat-X/internal/tracing"
	"github.com/XOOChatx/Chat-X/internal/validation"
	"github.com/XOOChatx/Chat-X/pkg/connector"
)

// Store persists the list of sessions across restarts
type Store interface {
	SaveSession(ctx context.Context, rec models.SessionRecord) error
	MarkAuthenticated(ctx context.Context, id string, authenticated bool) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]models.SessionRecord, error)
}

// Options tunes the manager. Zero values fall back to package defaults.
type Options struct {
	QRTTL                   time.Duration
	QRRequestTimeout        time.Duration
	MaxConcurrentReconnects int
	AttemptTimeout          time.Duration
	ReadyPollInterval       time.Duration
	Backoff                 retry.BackoffConfig
	HealthInterval          time.Duration
	ProbeTimeout            time.Duration
	MonitorInitialDelay     time.Duration
	AdapterStopTimeout      time.Duration
	Clock                   retry.Clock
	Random                  func() float64
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		QRTTL:                   time.Duration(constants.DefaultQRTTLSec) * time.Second,
		QRRequestTimeout:        time.Duration(constants.DefaultQRRequestTimeoutSec) * time.Second,
		MaxConcurrentReconnects: constants.DefaultMaxConcurrentReconnects,
		AttemptTimeout:          time.Duration(constants.DefaultReconnectAttemptTimeout) * time.Second,
		ReadyPollInterval:       time.Duration(constants.DefaultReconnectReadyPollMs) * time.Millisecond,
		Backoff: retry.BackoffConfig{
			InitialDelay: time.Duration(constants.DefaultReconnectInitialBackoffMs) * time.Millisecond,
			MaxDelay:     time.Duration(constants.DefaultReconnectMaxBackoffMs) * time.Millisecond,
			Multiplier:   constants.DefaultReconnectMultiplier,
			MaxAttempts:  constants.DefaultReconnectMaxAttempts,
			Jitter:       true,
		},
		HealthInterval:      time.Duration(constants.DefaultSessionHealthCheckSec) * time.Second,
		ProbeTimeout:        time.Duration(constants.DefaultProbeTimeoutSec) * time.Second,
		MonitorInitialDelay: time.Duration(constants.DefaultSessionMonitorInitDelaySec) * time.Second,
		AdapterStopTimeout:  time.Duration(constants.DefaultAdapterStopTimeoutSec) * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.QRTTL <= 0 {
		o.QRTTL = def.QRTTL
	}
	if o.QRRequestTimeout <= 0 {
		o.QRRequestTimeout = def.QRRequestTimeout
	}
	if o.MaxConcurrentReconnects <= 0 {
		o.MaxConcurrentReconnects = def.MaxConcurrentReconnects
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = def.AttemptTimeout
	}
	if o.ReadyPollInterval <= 0 {
		o.ReadyPollInterval = def.ReadyPollInterval
	}
	if o.Backoff.MaxAttempts <= 0 {
		o.Backoff = def.Backoff
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = def.HealthInterval
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = def.ProbeTimeout
	}
	if o.MonitorInitialDelay < 0 {
		o.MonitorInitialDelay = def.MonitorInitialDelay
	}
	if o.AdapterStopTimeout <= 0 {
		o.AdapterStopTimeout = def.AdapterStopTimeout
	}
	if o.Clock == nil {
		o.Clock = retry.RealClock()
	}
	return o
}

// CreateRequest describes a new session. An empty ID is generated.
type CreateRequest struct {
	ID          string
	Provider    connector.Provider
	Credentials string
}

// QRResult is either a challenge or a pending marker
type QRResult struct {
	Challenge *connector.Challenge
	Pending   bool
}

// Manager is the entry point to the session core
type Manager struct {
	registry    *Registry
	qr          *QRCache
	reconnector *Reconnector
	monitor     *Monitor

	factory   connector.Factory
	store     Store
	events    *events.Broadcaster
	logger    *logrus.Logger
	errLogger *apperrors.Logger
	opts      Options
	clock     retry.Clock

	baseCtx   context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewManager wires a manager. store may be nil when nothing is persisted.
func NewManager(factory connector.Factory, store Store, broadcaster *events.Broadcaster, logger *logrus.Logger, opts Options) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if broadcaster == nil {
		broadcaster = events.NewBroadcaster(constants.DefaultSubscriberBufferSize, logger)
	}
	if store == nil {
		store = nopStore{}
	}
	opts = opts.withDefaults()

	baseCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		factory:   factory,
		store:     store,
		events:    broadcaster,
		logger:    logger,
		errLogger: apperrors.NewLogger(logger),
		opts:      opts,
		clock:     opts.Clock,
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
	m.registry = NewRegistry(broadcaster, opts.Clock, logger)
	m.qr = NewQRCache(opts.QRTTL, opts.Clock)
	m.reconnector = newReconnector(m)
	m.monitor = newMonitor(m)
	return m
}

// Events returns the broadcaster lifecycle events are published on
func (m *Manager) Events() *events.Broadcaster {
	return m.events
}

// Start launches the health monitor
func (m *Manager) Start(ctx context.Context) {
	m.monitor.Start(ctx)
}

// Recover loads persisted sessions. Authenticated ones go to the
// reconnector; sessions that never finished pairing come back in CREATED so
// they stay listed and can request a new challenge. It returns the number
// of reconnects queued once every session is registered; reconnects
// continue in the background.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	persisted, err := m.store.ListSessions(ctx)
	if err != nil {
		return 0, apperrors.NewDatabaseError("list sessions", err)
	}

	authenticated := make([]models.SessionRecord, 0, len(persisted))
	restored := 0
	for _, p := range persisted {
		if p.Authenticated {
			authenticated = append(authenticated, p)
			continue
		}
		if m.restoreUnpaired(p) {
			restored++
		}
	}

	n := m.reconnector.RecoverAll(ctx, authenticated)
	m.logger.WithFields(logrus.Fields{
		LogFieldCount:    n,
		LogFieldRestored: restored,
	}).Info("Session recovery scheduled")
	return n, nil
}

// restoreUnpaired registers a persisted session that never paired in CREATED
func (m *Manager) restoreUnpaired(p models.SessionRecord) bool {
	provider, err := connector.ParseProvider(p.Provider)
	if err != nil {
		m.logger.WithError(err).WithField(LogFieldSession, p.ID).Warn("Skipping persisted session with unknown provider")
		return false
	}

	rec := m.newRecord(p.ID, provider, p.Credentials, StateCreated, p.CreatedAt)
	rec.mu.Lock()
	err = m.registry.insertLocked(rec)
	rec.mu.Unlock()
	if err != nil {
		rec.cancel()
		m.logger.WithError(err).WithField(LogFieldSession, p.ID).Warn("Skipping persisted session")
		return false
	}
	return true
}

// Close stops the monitor, cancels all in-flight work and stops every
// adapter. Persisted sessions are left in place for the next start.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.monitor.Stop()
		m.cancel()

		var stops sync.WaitGroup
		for _, rec := range m.registry.all() {
			rec.mu.Lock()
			rec.cancel()
			adapter := m.detachAdapterLocked(rec)
			rec.mu.Unlock()

			stops.Add(1)
			go func(id string) {
				defer stops.Done()
				m.stopAdapter(ctx, id, adapter)
			}(rec.id)
		}
		stops.Wait()
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		m.monitor.probes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) newRecord(id string, provider connector.Provider, credentials string, state State, createdAt time.Time) *record {
	now := m.clock.Now()
	if createdAt.IsZero() {
		createdAt = now
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	return &record{
		id:          id,
		provider:    provider,
		credentials: credentials,
		state:       state,
		createdAt:   createdAt,
		updatedAt:   now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// CreateSession registers a new session in CREATED
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (string, error) {
	provider, err := connector.ParseProvider(string(req.Provider))
	if err != nil {
		return "", apperrors.NewValidationError("provider", string(req.Provider), err.Error())
	}

	if err := validation.ValidateCredentials(provider, req.Credentials); err != nil {
		return "", err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	} else if err := validation.ValidateSessionID(id); err != nil {
		return "", err
	}

	rec := m.newRecord(id, provider, req.Credentials, StateCreated, time.Time{})
	rec.mu.Lock()
	err = m.registry.insertLocked(rec)
	rec.mu.Unlock()
	if err != nil {
		rec.cancel()
		return "", err
	}

	if err := m.store.SaveSession(ctx, models.SessionRecord{
		ID:          id,
		Provider:    string(provider),
		Credentials: req.Credentials,
		CreatedAt:   rec.createdAt,
		UpdatedAt:   rec.createdAt,
	}); err != nil {
		m.errLogger.LogError(apperrors.NewDatabaseError("save session", err), "Failed to persist session", logrus.Fields{LogFieldSession: id})
	}

	m.logger.WithFields(logrus.Fields{
		LogFieldSession:  id,
		LogFieldProvider: provider,
	}).Info("Session created")
	return id, nil
}

// GetOrCreateQR returns the session's current challenge, starting the
// adapter on first use. Concurrent callers share one generation. A caller
// whose context expires before the challenge exists gets Pending.
func (m *Manager) GetOrCreateQR(ctx context.Context, id string) (*QRResult, error) {
	rec, err := m.registry.lookup(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	switch rec.state {
	case StateCreated:
		if err := m.registry.transitionLocked(rec, StateQRPending, nil); err != nil {
			rec.mu.Unlock()
			return nil, err
		}
	case StateQRPending:
	case StateQRReady:
		if ch, ok := m.qr.Get(id); ok {
			rec.mu.Unlock()
			return &QRResult{Challenge: ch}, nil
		}
		m.expireChallengeLocked(rec)
	default:
		state := rec.state
		rec.mu.Unlock()
		return nil, apperrors.NewInvalidStateError(id, string(state), "request a QR challenge")
	}
	rec.mu.Unlock()

	ch, err := m.qr.RequestChallenge(ctx, id, func() (*connector.Challenge, error) {
		return m.generateChallenge(rec)
	})
	switch {
	case err == nil && ch != nil:
		return &QRResult{Challenge: ch}, nil
	case err == nil, errors.Is(err, apperrors.ErrChallengeUnavailable):
		return &QRResult{Pending: true}, nil
	case ctx.Err() != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
		return &QRResult{Pending: true}, nil
	default:
		return nil, err
	}
}

// generateChallenge is the single in-flight generation for rec. It runs on
// the session context so Stop aborts it.
func (m *Manager) generateChallenge(rec *record) (*connector.Challenge, error) {
	rec.mu.Lock()
	if rec.removed {
		rec.mu.Unlock()
		return nil, apperrors.NewUnknownSessionError(rec.id)
	}
	if !rec.state.IsPairing() {
		state := rec.state
		rec.mu.Unlock()
		return nil, apperrors.NewInvalidStateError(rec.id, string(state), "request a QR challenge")
	}
	adapter, err := m.ensureAdapterLocked(rec)
	gen, started, sessCtx := rec.generation, rec.started, rec.ctx
	rec.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(sessCtx, m.opts.QRRequestTimeout)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "session.generate_challenge",
		tracing.SessionAttributes(rec.id, string(rec.provider))...)
	defer span.End()

	if !started {
		start := func() error { return adapter.Start(ctx) }
		if err := callAdapterBounded(ctx, "start", m.opts.QRRequestTimeout, start); err != nil {
			tracing.RecordError(ctx, err)
			metrics.ChallengeGenerations.WithLabelValues(string(rec.provider), "error").Inc()
			return nil, m.recordAdapterFailure(rec, gen, "start", err)
		}
		m.markStarted(rec, gen)
	}

	var ch *connector.Challenge
	err = callAdapterBounded(ctx, "qr_challenge", m.opts.QRRequestTimeout, func() error {
		got, qrErr := adapter.QRChallenge(ctx)
		if qrErr == nil {
			ch = got
		}
		return qrErr
	})
	if errors.Is(err, connector.ErrChallengeUnavailable) || (err == nil && ch == nil) {
		metrics.ChallengeGenerations.WithLabelValues(string(rec.provider), "pending").Inc()
		return nil, apperrors.ErrChallengeUnavailable
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		metrics.ChallengeGenerations.WithLabelValues(string(rec.provider), "error").Inc()
		return nil, m.recordAdapterFailure(rec, gen, "qr_challenge", err)
	}
	metrics.ChallengeGenerations.WithLabelValues(string(rec.provider), "ok").Inc()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed || rec.generation != gen {
		return nil, apperrors.NewUnknownSessionError(rec.id)
	}
	stored := m.qr.Store(rec.id, ch)
	m.applyChallengeLocked(rec, stored)
	return stored, nil
}

// applyChallengeLocked records a new challenge and moves a pending session
// to QR_READY. A refreshed challenge in QR_READY is re-announced.
func (m *Manager) applyChallengeLocked(rec *record, ch *connector.Challenge) {
	switch rec.state {
	case StateQRPending:
		rec.challenge = ch
		_ = m.registry.transitionLocked(rec, StateQRReady, challengePayload(ch))
	case StateQRReady:
		if rec.challenge != nil && rec.challenge.Payload == ch.Payload {
			rec.challenge = ch
			return
		}
		rec.challenge = ch
		rec.updatedAt = m.clock.Now()
		m.registry.publishLocked(rec, events.KindChallengeReady, challengePayload(ch))
	}
}

// expireChallengeLocked sends an unscanned QR_READY session back to
// QR_PENDING so the next request regenerates.
func (m *Manager) expireChallengeLocked(rec *record) {
	rec.challenge = nil
	m.qr.Invalidate(rec.id)
	_ = m.registry.transitionLocked(rec, StateQRPending, map[string]interface{}{"reason": "challenge expired"})
}

// HandleProviderEvent routes a pushed provider event (a gateway webhook)
// to the session's current adapter generation.
func (m *Manager) HandleProviderEvent(id string, evt connector.Event) error {
	rec, err := m.registry.lookup(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	gen := rec.generation
	rec.mu.Unlock()

	m.handleAdapterEvent(rec, gen, evt)
	return nil
}

func (m *Manager) handleAdapterEvent(rec *record, gen uint64, evt connector.Event) {
	if evt.At.IsZero() {
		evt.At = m.clock.Now()
	}

	rec.mu.Lock()
	if rec.removed || rec.generation != gen {
		rec.mu.Unlock()
		m.logger.WithFields(logrus.Fields{
			LogFieldSession:    rec.id,
			LogFieldGeneration: gen,
			"event":            evt.Kind,
		}).Debug("Ignoring event from retired adapter")
		return
	}

	var (
		authenticated bool
		reconnect     bool
		stale         connector.Adapter
	)
	switch evt.Kind {
	case connector.EventChallenge:
		if evt.Challenge != nil && rec.state.IsPairing() {
			m.applyChallengeLocked(rec, m.qr.Store(rec.id, evt.Challenge))
		}
	case connector.EventScanned:
		if rec.state == StateQRReady {
			_ = m.registry.transitionLocked(rec, StateAuthenticating, nil)
		}
	case connector.EventConnected:
		authenticated = m.markConnectedLocked(rec, evt.At)
	case connector.EventDisconnected:
		reconnect, stale = m.markDisconnectedLocked(rec, evt.Err)
	case connector.EventMessage:
		m.registry.publishLocked(rec, events.KindMessageReceived, evt.Payload)
	}
	id := rec.id
	rec.mu.Unlock()

	if evt.Kind == connector.EventMessage && m.logger.IsLevelEnabled(logrus.DebugLevel) {
		m.logger.WithFields(logrus.Fields(privacy.MaskSensitiveFields(evt.Payload))).
			WithField(LogFieldSession, id).
			Debug("Message received")
	}

	if stale != nil {
		// sinks run on adapter goroutines, which Stop may wait for
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.stopAdapter(m.baseCtx, id, stale)
		}()
	}
	if authenticated {
		m.persistAuthenticated(id, true)
	}
	if reconnect {
		m.reconnector.ScheduleReconnect(id)
	}
}

// markConnectedLocked applies a connect confirmation and reports whether
// this completed a first-time pairing.
func (m *Manager) markConnectedLocked(rec *record, at time.Time) bool {
	switch {
	case rec.state == StateConnected:
		rec.lastSeenAt = at
		return false
	case rec.state == StateReconnecting:
		if err := m.registry.transitionLocked(rec, StateConnected, nil); err == nil {
			m.resetAfterConnectLocked(rec, at)
		}
		return false
	case rec.state.IsPairing():
		for _, step := range rec.state.pathTo(StateConnected) {
			kind := kindFor(rec.state, step)
			if step == StateQRReady {
				// no challenge was ever issued on this path
				kind = events.KindStateChanged
			}
			if err := m.registry.transitionAsLocked(rec, step, kind, nil); err != nil {
				return false
			}
		}
		m.resetAfterConnectLocked(rec, at)
		return true
	}
	return false
}

func (m *Manager) resetAfterConnectLocked(rec *record, at time.Time) {
	rec.reconnectAttempts = 0
	rec.lastError = ""
	rec.lastSeenAt = at
	rec.challenge = nil
	m.qr.Invalidate(rec.id)
}

// markDisconnectedLocked applies a link loss. A connected session is
// scheduled for reconnect; a session lost during pairing has nothing to
// reconnect with and fails.
func (m *Manager) markDisconnectedLocked(rec *record, cause error) (bool, connector.Adapter) {
	if cause != nil {
		rec.lastError = cause.Error()
	}
	switch {
	case rec.state == StateConnected:
		return m.registry.transitionLocked(rec, StateDisconnected, errorPayload(cause)) == nil, nil
	case rec.state.IsPairing():
		rec.challenge = nil
		m.qr.Invalidate(rec.id)
		stale := m.detachAdapterLocked(rec)
		_ = m.registry.transitionLocked(rec, StateFailed, errorPayload(cause))
		return false, stale
	}
	return false, nil
}

func (m *Manager) persistAuthenticated(id string, authenticated bool) {
	ctx, cancel := context.WithTimeout(m.baseCtx, time.Duration(constants.DefaultHTTPTimeoutSec)*time.Second)
	defer cancel()
	if err := m.store.MarkAuthenticated(ctx, id, authenticated); err != nil {
		m.errLogger.LogError(apperrors.NewDatabaseError("mark authenticated", err), "Failed to persist session state", logrus.Fields{LogFieldSession: id})
	}
}

// GetStatus returns a snapshot of the session
func (m *Manager) GetStatus(ctx context.Context, id string) (Status, error) {
	rec, err := m.registry.lookup(id)
	if err != nil {
		return Status{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.statusLocked(), nil
}

// ListConnected returns the CONNECTED sessions ordered by id
func (m *Manager) ListConnected(ctx context.Context) []Summary {
	out := []Summary{}
	for _, rec := range m.registry.all() {
		rec.mu.Lock()
		if rec.state == StateConnected && !rec.removed {
			st := rec.statusLocked()
			out = append(out, Summary{ID: st.ID, Provider: st.Provider, LastSeenAt: st.LastSeenAt})
		}
		rec.mu.Unlock()
	}
	return out
}

// List returns every registered session ordered by id
func (m *Manager) List(ctx context.Context) []Status {
	recs := m.registry.all()
	out := make([]Status, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if !rec.removed {
			out = append(out, rec.statusLocked())
		}
		rec.mu.Unlock()
	}
	return out
}

// CountByState returns how many sessions are in each state
func (m *Manager) CountByState(ctx context.Context) map[State]int {
	counts := make(map[State]int)
	for _, st := range m.List(ctx) {
		counts[st.State]++
	}
	return counts
}

// Stop tears the session down and forgets it. Stopping an unknown session
// is a no-op.
func (m *Manager) Stop(ctx context.Context, id string) error {
	rec := m.registry.remove(id)
	if rec == nil {
		return nil
	}

	rec.mu.Lock()
	rec.removed = true
	rec.cancel()
	adapter := m.detachAdapterLocked(rec)
	rec.challenge = nil
	m.registry.retireLocked(rec)
	rec.mu.Unlock()

	m.qr.Invalidate(id)
	m.stopAdapter(ctx, id, adapter)

	m.logger.WithField(LogFieldSession, id).Info("Session stopped")

	if err := m.store.DeleteSession(ctx, id); err != nil {
		return apperrors.NewDatabaseError("delete session", err)
	}
	return nil
}

// Reset returns a FAILED session to CREATED so pairing can start over
func (m *Manager) Reset(ctx context.Context, id string) error {
	rec, err := m.registry.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	if rec.state != StateFailed {
		state := rec.state
		rec.mu.Unlock()
		return apperrors.NewInvalidStateError(id, string(state), "reset")
	}
	adapter := m.detachAdapterLocked(rec)
	rec.reconnectAttempts = 0
	rec.lastError = ""
	rec.challenge = nil
	err = m.registry.transitionLocked(rec, StateCreated, nil)
	rec.mu.Unlock()
	if err != nil {
		return err
	}

	m.qr.Invalidate(id)
	m.stopAdapter(ctx, id, adapter)

	if err := m.store.MarkAuthenticated(ctx, id, false); err != nil {
		return apperrors.NewDatabaseError("reset session", err)
	}
	return nil
}

// Reconnect asks for an immediate reconnect of a DISCONNECTED session. A
// session already reconnecting is left alone.
func (m *Manager) Reconnect(ctx context.Context, id string) error {
	rec, err := m.registry.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	state := rec.state
	rec.mu.Unlock()

	switch state {
	case StateReconnecting:
		return nil
	case StateDisconnected:
		m.reconnector.ScheduleReconnect(id)
		return nil
	default:
		return apperrors.NewInvalidStateError(id, string(state), "reconnect")
	}
}

func errorPayload(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	return map[string]interface{}{"error": err.Error()}
}

type nopStore struct{}

func (nopStore) SaveSession(context.Context, models.SessionRecord) error { return nil }
func (nopStore) MarkAuthenticated(context.Context, string, bool) error   { return nil }
func (nopStore) DeleteSession(context.Context, string) error             { return nil }
func (nopStore) ListSessions(context.Context) ([]models.SessionRecord, error) {
	return nil, nil
}
