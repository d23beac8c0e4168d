package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/XOOChatx/Chat-X/internal/errors"
	"github.com/XOOChatx/Chat-X/internal/metrics"
	"github.com/XOOChatx/Chat-X/pkg/connector"
)

// Monitor periodically probes connected sessions and routes failures into
// the reconnect path. Each probe runs on its own goroutine so a hanging
// provider only delays its own session.
type Monitor struct {
	m             *Manager
	logger        *logrus.Logger
	checkInterval time.Duration
	probeTimeout  time.Duration
	initDelay     time.Duration
	mu            sync.Mutex
	running       bool
	stopCh        chan struct{}
	probes        sync.WaitGroup
}

type probeJob struct {
	rec     *record
	adapter connector.Adapter
	gen     uint64
	ctx     context.Context
}

func newMonitor(m *Manager) *Monitor {
	return &Monitor{
		m:             m,
		logger:        m.logger,
		checkInterval: m.opts.HealthInterval,
		probeTimeout:  m.opts.ProbeTimeout,
		initDelay:     m.opts.MonitorInitialDelay,
		stopCh:        make(chan struct{}),
	}
}

// Start begins monitoring
func (sm *Monitor) Start(ctx context.Context) {
	sm.mu.Lock()
	if sm.running {
		sm.mu.Unlock()
		sm.logger.Warn("Session monitor is already running")
		return
	}

	// Reinitialize stopCh if it was closed
	if sm.stopCh == nil {
		sm.stopCh = make(chan struct{})
	}

	sm.running = true
	sm.mu.Unlock()

	go sm.monitorLoop(ctx)
	sm.logger.WithField("interval", sm.checkInterval.String()).Info("Session monitor started")
}

// Stop stops monitoring. Probes already in flight finish on their own.
func (sm *Monitor) Stop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.running {
		return
	}

	if sm.stopCh != nil {
		close(sm.stopCh)
		sm.stopCh = nil
	}
	sm.running = false
	sm.logger.Info("Session monitor stopped")
}

func (sm *Monitor) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(sm.checkInterval)
	defer ticker.Stop()

	stopCh := sm.getStopCh()

	if sm.initDelay > 0 {
		initDelay := time.NewTimer(sm.initDelay)
		defer initDelay.Stop()

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-initDelay.C:
			sm.checkSessions()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			sm.checkSessions()
		}
	}
}

// getStopCh safely retrieves the stop channel
func (sm *Monitor) getStopCh() <-chan struct{} {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.stopCh == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return sm.stopCh
}

// checkSessions launches a probe for every connected session without one
// in flight and expires unscanned challenges.
func (sm *Monitor) checkSessions() {
	now := sm.m.clock.Now()
	var jobs []probeJob

	for _, rec := range sm.m.registry.all() {
		rec.mu.Lock()
		switch {
		case rec.removed:
		case rec.state == StateConnected && rec.adapter != nil:
			if rec.probing {
				sm.logger.WithField(LogFieldSession, rec.id).Debug("Previous probe still running, skipping")
				break
			}
			rec.probing = true
			jobs = append(jobs, probeJob{rec: rec, adapter: rec.adapter, gen: rec.generation, ctx: rec.ctx})
		case rec.state == StateQRReady && rec.challenge.Expired(now):
			sm.m.expireChallengeLocked(rec)
		}
		rec.mu.Unlock()
	}

	for _, job := range jobs {
		sm.probes.Add(1)
		go sm.probe(job)
	}
}

func (sm *Monitor) probe(job probeJob) {
	defer sm.probes.Done()
	rec := job.rec
	defer func() {
		rec.mu.Lock()
		rec.probing = false
		rec.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(job.ctx, sm.probeTimeout)
	defer cancel()

	err := callAdapterBounded(ctx, "probe", sm.probeTimeout, func() error { return job.adapter.Probe(ctx) })
	if err == nil && ctx.Err() == context.DeadlineExceeded {
		err = apperrors.NewTimeoutError("probe", sm.probeTimeout, ctx.Err())
	}

	rec.mu.Lock()
	if rec.removed || rec.generation != job.gen || rec.state != StateConnected {
		rec.mu.Unlock()
		return
	}
	if err == nil {
		rec.lastSeenAt = sm.m.clock.Now()
		rec.mu.Unlock()
		return
	}

	probeErr := apperrors.NewAdapterError(string(rec.provider), "probe", err)
	rec.lastError = probeErr.Error()
	transitionErr := sm.m.registry.transitionLocked(rec, StateDisconnected, errorPayload(probeErr))
	rec.mu.Unlock()

	metrics.ProbeFailures.WithLabelValues(string(rec.provider)).Inc()
	sm.m.errLogger.LogWarn(probeErr, "Session probe failed", logrus.Fields{LogFieldSession: rec.id})

	if transitionErr == nil {
		sm.m.reconnector.ScheduleReconnect(rec.id)
	}
}
