// Package whatsapp adapts a WAHA-style HTTP gateway session to the
// connector capability set.
package whatsapp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/XOOChatx/Chat-X/pkg/connector"
	waha "github.com/XOOChatx/Chat-X/pkg/whatsapp"
	"github.com/XOOChatx/Chat-X/pkg/whatsapp/types"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

var (
	errGatewayFailed  = errors.New("gateway reported session FAILED")
	errGatewayStopped = errors.New("gateway session stopped")
	errAdapterStopped = errors.New("adapter stopped")
)

// Config holds adapter behaviour shared by every session
type Config struct {
	// StatusPoll is how often a started adapter polls the gateway
	StatusPoll time.Duration
	// QRSize is the PNG edge length in pixels
	QRSize int
	// QRTTL bounds a challenge's validity. Zero leaves expiry to the cache.
	QRTTL  time.Duration
	Logger *logrus.Logger
	Now    func() time.Time
}

// Factory builds gateway-backed adapters
type Factory struct {
	api waha.SessionAPI
	cfg Config
}

// NewFactory creates a factory whose adapters share one gateway client
func NewFactory(api waha.SessionAPI, cfg Config) *Factory {
	if cfg.StatusPoll <= 0 {
		cfg.StatusPoll = 2 * time.Second
	}
	if cfg.QRSize <= 0 {
		cfg.QRSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Factory{api: api, cfg: cfg}
}

// New implements connector.Factory. The gateway session is named after the
// session id so webhooks route back without a lookup table.
func (f *Factory) New(spec connector.Spec) (connector.Adapter, error) {
	if spec.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	if spec.Provider != connector.ProviderWhatsApp {
		return nil, fmt.Errorf("whatsapp adapter cannot serve provider %q", spec.Provider)
	}
	sink := spec.Sink
	if sink == nil {
		sink = func(connector.Event) {}
	}
	return &Adapter{
		api:    f.api,
		name:   spec.SessionID,
		sink:   sink,
		cfg:    f.cfg,
		logger: f.cfg.Logger,
	}, nil
}

// Adapter drives one gateway session
type Adapter struct {
	api    waha.SessionAPI
	name   string
	sink   connector.EventSink
	cfg    Config
	logger *logrus.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	touched  bool
	cancel   context.CancelFunc
	done     chan struct{}
	last     types.SessionStatus
	lastQR   string
	lastCode *connector.Challenge
	emitted  *connector.Challenge
}

// Start creates the gateway session if needed, starts it and begins
// polling its status. A Stop that lands while the gateway calls are in
// flight wins: the gateway session is stopped again and no polling starts.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return errAdapterStopped
	}
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.touched = true
	a.mu.Unlock()

	if err := a.api.Create(ctx, a.name); err != nil && !errors.Is(err, waha.ErrSessionExists) {
		return err
	}
	if err := a.api.Start(ctx, a.name); err != nil {
		return err
	}

	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	if a.stopped || ctx.Err() != nil {
		a.mu.Unlock()
		if err := a.api.Stop(context.WithoutCancel(ctx), a.name); err != nil {
			a.logger.WithError(err).WithField("session_id", a.name).Warn("Failed to stop abandoned gateway session")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return errAdapterStopped
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	a.started = true
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.pollLoop(pollCtx, a.done)
	a.mu.Unlock()

	a.logger.WithField("session_id", a.name).Debug("Gateway session started")
	return nil
}

// Stop halts polling and stops the gateway session. The gateway keeps the
// session's auth state so a later adapter resumes without a new scan. A
// stopped adapter cannot be started again.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel, done, touched := a.cancel, a.done, a.touched
	a.started = false
	a.stopped = true
	a.cancel = nil
	a.done = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !touched {
		return nil
	}
	return a.api.Stop(ctx, a.name)
}

// QRChallenge fetches the current raw challenge and renders it as a PNG
// data URL.
func (a *Adapter) QRChallenge(ctx context.Context) (*connector.Challenge, error) {
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		return nil, connector.ErrNotStarted
	}

	raw, err := a.api.QR(ctx, a.name)
	if errors.Is(err, waha.ErrQRNotAvailable) {
		return nil, connector.ErrChallengeUnavailable
	}
	if err != nil {
		return nil, err
	}
	return a.challengeFor(raw)
}

// challengeFor renders raw, reusing the previous challenge while the
// gateway keeps returning the same value.
func (a *Adapter) challengeFor(raw string) (*connector.Challenge, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if raw == a.lastQR && a.lastCode != nil && !a.lastCode.Expired(a.cfg.Now()) {
		return a.lastCode, nil
	}

	png, err := qrcode.Encode(raw, qrcode.Medium, a.cfg.QRSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	now := a.cfg.Now()
	ch := &connector.Challenge{
		Payload:  dataURLPrefix + base64.StdEncoding.EncodeToString(png),
		IssuedAt: now,
	}
	if a.cfg.QRTTL > 0 {
		ch.ExpiresAt = now.Add(a.cfg.QRTTL)
	}
	a.lastQR = raw
	a.lastCode = ch
	return ch, nil
}

// Status maps the gateway session status onto a link status
func (a *Adapter) Status(ctx context.Context) (connector.LinkStatus, error) {
	session, err := a.api.Get(ctx, a.name)
	if errors.Is(err, waha.ErrSessionNotFound) {
		return connector.LinkStopped, nil
	}
	if err != nil {
		return "", err
	}
	return linkStatus(session.Status), nil
}

// Probe succeeds only while the gateway reports the session as working
func (a *Adapter) Probe(ctx context.Context) error {
	session, err := a.api.Get(ctx, a.name)
	if err != nil {
		return err
	}
	if session.Status != types.SessionStatusWorking {
		return fmt.Errorf("gateway session is %s", session.Status)
	}
	return nil
}

func (a *Adapter) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.cfg.StatusPoll)
	defer ticker.Stop()

	for {
		a.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *Adapter) poll(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, a.cfg.StatusPoll)
	defer cancel()

	session, err := a.api.Get(reqCtx, a.name)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.WithError(err).WithField("session_id", a.name).Debug("Gateway status poll failed")
		}
		return
	}

	var qr *connector.Challenge
	if session.Status == types.SessionStatusScanQR {
		raw, err := a.api.QR(reqCtx, a.name)
		if err == nil {
			qr, err = a.challengeFor(raw)
		}
		if err != nil && !errors.Is(err, waha.ErrQRNotAvailable) && ctx.Err() == nil {
			a.logger.WithError(err).WithField("session_id", a.name).Debug("Gateway QR poll failed")
		}
	}
	if ctx.Err() != nil {
		return
	}
	for _, evt := range a.observe(session.Status, qr) {
		a.sink(evt)
	}
}

// observe records a polled status and returns the events the change
// implies. A challenge is emitted once per rendered payload.
func (a *Adapter) observe(status types.SessionStatus, qr *connector.Challenge) []connector.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.last
	a.last = status

	now := a.cfg.Now()
	var out []connector.Event
	switch status {
	case types.SessionStatusScanQR:
		if qr != nil && qr != a.emitted {
			a.emitted = qr
			out = append(out, connector.Event{Kind: connector.EventChallenge, Challenge: qr, At: now})
		}
	case types.SessionStatusWorking:
		if prev != types.SessionStatusWorking {
			if prev == types.SessionStatusScanQR {
				out = append(out, connector.Event{Kind: connector.EventScanned, At: now})
			}
			out = append(out, connector.Event{Kind: connector.EventConnected, At: now})
		}
	case types.SessionStatusFailed:
		if prev != types.SessionStatusFailed {
			out = append(out, connector.Event{Kind: connector.EventDisconnected, Err: errGatewayFailed, At: now})
		}
	case types.SessionStatusStopped:
		if prev == types.SessionStatusWorking {
			out = append(out, connector.Event{Kind: connector.EventDisconnected, Err: errGatewayStopped, At: now})
		}
	}
	return out
}

func linkStatus(status types.SessionStatus) connector.LinkStatus {
	switch status {
	case types.SessionStatusStarting:
		return connector.LinkStarting
	case types.SessionStatusScanQR:
		return connector.LinkAwaitingScan
	case types.SessionStatusWorking:
		return connector.LinkConnected
	case types.SessionStatusFailed:
		return connector.LinkFailed
	default:
		return connector.LinkStopped
	}
}
