package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/XOOChatx/Chat-X/internal/errors"
	"github.com/XOOChatx/Chat-X/pkg/connector"
)

// callAdapter runs fn and converts a panic inside the adapter into an error
func callAdapter(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return fn()
}

// callAdapterBounded runs fn on its own goroutine and returns when fn does
// or when ctx ends, whichever comes first. An adapter that ignores ctx is
// left to finish in the background. operation and limit name the deadline
// in the returned timeout error.
func callAdapterBounded(ctx context.Context, operation string, limit time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- callAdapter(fn)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	select {
	case err := <-done:
		return err
	default:
	}
	if ctx.Err() == context.DeadlineExceeded {
		return apperrors.NewTimeoutError(operation, limit, ctx.Err())
	}
	return ctx.Err()
}

// ensureAdapterLocked installs a fresh adapter generation if rec has none
func (m *Manager) ensureAdapterLocked(rec *record) (connector.Adapter, error) {
	if rec.adapter != nil {
		return rec.adapter, nil
	}

	gen := rec.generation + 1
	adapter, err := m.factory.New(connector.Spec{
		SessionID:   rec.id,
		Provider:    rec.provider,
		Credentials: rec.credentials,
		Sink:        m.sinkFor(rec, gen),
	})
	if err != nil {
		return nil, apperrors.NewAdapterError(string(rec.provider), "create", err)
	}

	rec.adapter = adapter
	rec.generation = gen
	rec.started = false

	m.logger.WithFields(logrus.Fields{
		LogFieldSession:    rec.id,
		LogFieldGeneration: gen,
	}).Debug("Adapter installed")
	return adapter, nil
}

// detachAdapterLocked takes the adapter away from rec so its events are
// ignored from now on. The caller stops it once rec.mu is released.
func (m *Manager) detachAdapterLocked(rec *record) connector.Adapter {
	adapter := rec.adapter
	rec.adapter = nil
	rec.started = false
	rec.generation++
	return adapter
}

func (m *Manager) markStarted(rec *record, gen uint64) {
	rec.mu.Lock()
	if rec.generation == gen {
		rec.started = true
	}
	rec.mu.Unlock()
}

// stopAdapter tears an adapter down. It must not be called with a record
// lock held.
func (m *Manager) stopAdapter(ctx context.Context, id string, adapter connector.Adapter) {
	if adapter == nil {
		return
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.AdapterStopTimeout)
	defer cancel()

	err := callAdapterBounded(stopCtx, "stop", m.opts.AdapterStopTimeout, func() error { return adapter.Stop(stopCtx) })
	if err != nil {
		m.errLogger.LogWarn(err, "Failed to stop adapter", logrus.Fields{LogFieldSession: id})
	}
}

// recordAdapterFailure stores the failure on rec when gen is still current
// and returns the error to hand back to the caller.
func (m *Manager) recordAdapterFailure(rec *record, gen uint64, operation string, cause error) error {
	err := apperrors.NewAdapterError(string(rec.provider), operation, cause)

	rec.mu.Lock()
	removed := rec.removed
	if !removed && rec.generation == gen {
		rec.lastError = err.Error()
		rec.updatedAt = m.clock.Now()
	}
	rec.mu.Unlock()

	if removed {
		return apperrors.NewUnknownSessionError(rec.id)
	}
	m.errLogger.LogRetryableError(err, "Adapter call failed", logrus.Fields{
		LogFieldSession:   rec.id,
		LogFieldOperation: operation,
	})
	return err
}

func (m *Manager) sinkFor(rec *record, gen uint64) connector.EventSink {
	return func(evt connector.Event) {
		m.handleAdapterEvent(rec, gen, evt)
	}
}
