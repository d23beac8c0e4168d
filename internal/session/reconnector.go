package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/XOOChatx/Chat-X/internal/errors"
	"github.com/XOOChatx/Chat-X/internal/metrics"
	"github.com/XOOChatx/Chat-X/internal/models"
	"github.com/XOOChatx/Chat-X/internal/retry"
	"github.com/XOOChatx/Chat-X/internal/tracing"
	"github.com/XOOChatx/Chat-X/pkg/connector"
)

var (
	errProviderFailed = errors.New("provider reported session failure")
	errNeedsScan      = errors.New("provider requires a new QR scan")
)

// Reconnector drives RECONNECTING sessions back to CONNECTED. At most
// MaxConcurrentReconnects attempts run at once; waiting sessions are
// admitted in submission order and backoff waits never hold a slot.
type Reconnector struct {
	m              *Manager
	sem            *semaphore.Weighted
	backoff        *retry.Backoff
	attemptTimeout time.Duration
	pollInterval   time.Duration
	logger         *logrus.Logger
}

func newReconnector(m *Manager) *Reconnector {
	backoff := retry.NewBackoff(m.opts.Backoff).WithClock(m.clock)
	if m.opts.Random != nil {
		backoff = backoff.WithRandom(m.opts.Random)
	}
	return &Reconnector{
		m:              m,
		sem:            semaphore.NewWeighted(int64(m.opts.MaxConcurrentReconnects)),
		backoff:        backoff,
		attemptTimeout: m.opts.AttemptTimeout,
		pollInterval:   m.opts.ReadyPollInterval,
		logger:         m.logger,
	}
}

// RecoverAll registers persisted sessions in RECONNECTING and queues them
// in list order. Ids already present in the registry are skipped. It
// returns the number of sessions queued.
func (r *Reconnector) RecoverAll(ctx context.Context, persisted []models.SessionRecord) int {
	queued := make([]*record, 0, len(persisted))
	for _, p := range persisted {
		provider, err := connector.ParseProvider(p.Provider)
		if err != nil {
			r.logger.WithError(err).WithField(LogFieldSession, p.ID).Warn("Skipping persisted session with unknown provider")
			continue
		}

		rec := r.m.newRecord(p.ID, provider, p.Credentials, StateReconnecting, p.CreatedAt)
		rec.reconnecting = true
		rec.mu.Lock()
		err = r.m.registry.insertLocked(rec)
		rec.mu.Unlock()
		if err != nil {
			rec.cancel()
			r.logger.WithError(err).WithField(LogFieldSession, p.ID).Warn("Skipping persisted session")
			continue
		}
		queued = append(queued, rec)
	}

	if len(queued) == 0 {
		return 0
	}

	r.m.wg.Add(1)
	go func() {
		defer r.m.wg.Done()
		for i, rec := range queued {
			if ctx.Err() != nil {
				for _, rest := range queued[i:] {
					r.finish(rest)
				}
				return
			}
			if err := r.sem.Acquire(rec.ctx, 1); err != nil {
				r.finish(rec)
				continue
			}
			r.m.wg.Add(1)
			go r.run(rec.ctx, rec, true)
		}
	}()
	return len(queued)
}

// ScheduleReconnect moves a DISCONNECTED session to RECONNECTING and
// starts its retry loop. Any other state is left untouched.
func (r *Reconnector) ScheduleReconnect(id string) {
	if r.m.baseCtx.Err() != nil {
		return
	}
	rec, err := r.m.registry.lookup(id)
	if err != nil {
		return
	}

	rec.mu.Lock()
	if rec.removed || rec.reconnecting || rec.state != StateDisconnected {
		rec.mu.Unlock()
		return
	}
	if err := r.m.registry.transitionLocked(rec, StateReconnecting, nil); err != nil {
		rec.mu.Unlock()
		return
	}
	rec.reconnecting = true
	rec.reconnectAttempts = 0
	ctx := rec.ctx
	rec.mu.Unlock()

	r.m.wg.Add(1)
	go r.run(ctx, rec, false)
}

// finish releases the session's retry loop. A session that dropped again
// while the loop was winding down gets a fresh loop.
func (r *Reconnector) finish(rec *record) {
	rec.mu.Lock()
	rec.reconnecting = false
	again := !rec.removed && rec.state == StateDisconnected
	rec.mu.Unlock()

	if again {
		r.ScheduleReconnect(rec.id)
	}
}

// run retries until the session connects, the budget runs out or ctx is
// cancelled. held is true when the caller already acquired the first slot.
func (r *Reconnector) run(ctx context.Context, rec *record, held bool) {
	defer r.m.wg.Done()
	defer r.finish(rec)

	for attempt := 1; ; attempt++ {
		if !held {
			if err := r.sem.Acquire(ctx, 1); err != nil {
				return
			}
		}
		held = false

		err := r.attempt(ctx, rec, attempt)
		r.sem.Release(1)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !r.recordFailure(rec, attempt, err) {
			return
		}

		delay := r.backoff.Delay(attempt)
		r.logger.WithFields(logrus.Fields{
			LogFieldSession: rec.id,
			LogFieldAttempt: attempt,
			LogFieldDelay:   delay.Milliseconds(),
		}).Debug("Waiting before next reconnect attempt")
		if err := r.backoff.Wait(ctx, delay); err != nil {
			return
		}
	}
}

func (r *Reconnector) attempt(ctx context.Context, rec *record, attempt int) (err error) {
	metrics.ReconnectsInFlight.Inc()
	defer metrics.ReconnectsInFlight.Dec()

	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	attemptCtx, span := tracing.StartSpan(attemptCtx, "session.reconnect_attempt",
		tracing.AttrSessionID.String(rec.id),
		tracing.AttrProvider.String(string(rec.provider)),
		tracing.AttrAttempt.Int(attempt),
	)
	defer span.End()

	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			tracing.RecordError(attemptCtx, err)
		}
		metrics.ReconnectAttempts.WithLabelValues(string(rec.provider), result).Inc()
	}()

	adapter, gen, err := r.replaceAdapter(attemptCtx, rec)
	if err != nil {
		return err
	}

	start := func() error { return adapter.Start(attemptCtx) }
	if err := callAdapterBounded(attemptCtx, "start", r.attemptTimeout, start); err != nil {
		return apperrors.NewAdapterError(string(rec.provider), "start", err)
	}
	r.m.markStarted(rec, gen)

	if err := r.awaitConnected(attemptCtx, adapter); err != nil {
		return apperrors.NewAdapterError(string(rec.provider), "status", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed || rec.generation != gen {
		return context.Canceled
	}
	switch rec.state {
	case StateConnected:
		return nil
	case StateReconnecting:
		if err := r.m.registry.transitionLocked(rec, StateConnected, map[string]interface{}{"attempt": attempt}); err != nil {
			return err
		}
		r.m.resetAfterConnectLocked(rec, r.m.clock.Now())
		r.logger.WithFields(logrus.Fields{
			LogFieldSession: rec.id,
			LogFieldAttempt: attempt,
		}).Info("Session reconnected")
		return nil
	default:
		return apperrors.NewInvalidStateError(rec.id, string(rec.state), "complete reconnect")
	}
}

// replaceAdapter retires the current adapter and installs a new generation,
// so at most one adapter is ever live for the session.
func (r *Reconnector) replaceAdapter(ctx context.Context, rec *record) (connector.Adapter, uint64, error) {
	rec.mu.Lock()
	if rec.removed {
		rec.mu.Unlock()
		return nil, 0, context.Canceled
	}
	if rec.state != StateReconnecting {
		state := rec.state
		rec.mu.Unlock()
		return nil, 0, apperrors.NewInvalidStateError(rec.id, string(state), "reconnect")
	}
	old := r.m.detachAdapterLocked(rec)
	rec.mu.Unlock()

	r.m.stopAdapter(ctx, rec.id, old)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		return nil, 0, context.Canceled
	}
	if rec.state != StateReconnecting {
		return nil, 0, apperrors.NewInvalidStateError(rec.id, string(rec.state), "reconnect")
	}
	adapter, err := r.m.ensureAdapterLocked(rec)
	if err != nil {
		return nil, 0, err
	}
	return adapter, rec.generation, nil
}

// awaitConnected polls the adapter until it reports a live link
func (r *Reconnector) awaitConnected(ctx context.Context, adapter connector.Adapter) error {
	var lastErr error
	for {
		var status connector.LinkStatus
		err := callAdapterBounded(ctx, "status", r.attemptTimeout, func() error {
			st, statusErr := adapter.Status(ctx)
			if statusErr == nil {
				status = st
			}
			return statusErr
		})
		if err == nil {
			switch status {
			case connector.LinkConnected:
				return nil
			case connector.LinkFailed:
				return errProviderFailed
			case connector.LinkAwaitingScan:
				return errNeedsScan
			}
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("not connected before deadline: %w", lastErr)
			}
			return fmt.Errorf("not connected before deadline: %w", ctx.Err())
		case <-r.m.clock.After(r.pollInterval):
		}
	}
}

// recordFailure books a failed attempt and reports whether to retry. The
// last allowed failure moves the session to FAILED.
func (r *Reconnector) recordFailure(rec *record, attempt int, cause error) bool {
	rec.mu.Lock()
	if rec.removed || rec.state != StateReconnecting {
		rec.mu.Unlock()
		return false
	}
	rec.reconnectAttempts = attempt
	rec.lastError = cause.Error()
	rec.updatedAt = r.m.clock.Now()

	if !r.backoff.Exhausted(attempt) {
		rec.mu.Unlock()
		r.m.errLogger.LogWarn(cause, "Reconnect attempt failed", logrus.Fields{
			LogFieldSession: rec.id,
			LogFieldAttempt: attempt,
		})
		return true
	}

	budgetErr := apperrors.NewRetryBudgetError(rec.id, attempt, cause)
	rec.lastError = budgetErr.Error()
	stale := r.m.detachAdapterLocked(rec)
	_ = r.m.registry.transitionLocked(rec, StateFailed, map[string]interface{}{
		"attempts": attempt,
		"error":    budgetErr.Error(),
		"code":     string(apperrors.ErrCodeRetryBudgetExhausted),
	})
	rec.mu.Unlock()

	metrics.RetryBudgetExhausted.Inc()
	r.m.errLogger.LogError(budgetErr, "Session reconnect budget exhausted", logrus.Fields{LogFieldSession: rec.id})
	r.m.stopAdapter(r.m.baseCtx, rec.id, stale)
	return false
}
