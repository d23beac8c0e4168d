// Package telegram adapts a Bot API token session to the connector
// capability set. A token needs no scan: the session connects as soon as
// the token is verified, and the challenge is a QR of the bot's t.me link.
package telegram

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/XOOChatx/Chat-X/pkg/circuitbreaker"
	"github.com/XOOChatx/Chat-X/pkg/connector"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const (
	dataURLPrefix    = "data:image/png;base64,"
	maxResponseBytes = 64 << 10
)

var (
	// ErrMissingToken is returned when a session has no bot token
	ErrMissingToken = errors.New("telegram bot token is required")
	// ErrUnauthorized is returned when the Bot API rejects the token
	ErrUnauthorized = errors.New("telegram bot token rejected")
)

// Config configures the Bot API client shared by every session
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	QRSize             int
	CircuitMaxFailures uint32
	CircuitTimeout     time.Duration
	HTTPClient         *http.Client
	Logger             *logrus.Logger
	Now                func() time.Time
}

// Bot is the account behind a token
type Bot struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"first_name"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// Factory builds token-backed adapters
type Factory struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	cfg     Config
}

// NewFactory creates a factory whose adapters share one HTTP client and
// circuit breaker
func NewFactory(cfg Config) *Factory {
	if cfg.QRSize <= 0 {
		cfg.QRSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Factory{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		breaker: circuitbreaker.New("telegram", cfg.CircuitMaxFailures, cfg.CircuitTimeout, cfg.Logger),
		cfg:     cfg,
	}
}

// New implements connector.Factory
func (f *Factory) New(spec connector.Spec) (connector.Adapter, error) {
	if spec.Provider != connector.ProviderTelegram {
		return nil, fmt.Errorf("telegram adapter cannot serve provider %q", spec.Provider)
	}
	token := strings.TrimSpace(spec.Credentials)
	if token == "" {
		return nil, ErrMissingToken
	}
	sink := spec.Sink
	if sink == nil {
		sink = func(connector.Event) {}
	}
	return &Adapter{factory: f, id: spec.SessionID, token: token, sink: sink}, nil
}

// getMe verifies a token. Only transport errors and 5xx responses count
// against the breaker.
func (f *Factory) getMe(ctx context.Context, token string) (*Bot, error) {
	var resp apiResponse
	var status int
	err := f.breaker.Execute(ctx, func(ctx context.Context) error {
		endpoint := f.baseURL + "/bot" + token + "/getMe"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.New("failed to create request")
		}

		httpResp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", redact(err))
		}
		defer httpResp.Body.Close()

		status = httpResp.StatusCode
		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if status >= http.StatusInternalServerError {
			return fmt.Errorf("bot API unavailable, status: %d", status)
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			resp = apiResponse{Description: "malformed response"}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusUnauthorized || resp.ErrorCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case !resp.OK:
		return nil, fmt.Errorf("bot API getMe failed, status: %d: %s", status, resp.Description)
	}

	var bot Bot
	if err := json.Unmarshal(resp.Result, &bot); err != nil {
		return nil, fmt.Errorf("failed to decode getMe result: %w", err)
	}
	if bot.Username == "" {
		return nil, errors.New("bot API returned no username")
	}
	return &bot, nil
}

// redact strips the request URL, which embeds the token, from transport errors
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// Adapter holds one bot token session
type Adapter struct {
	factory *Factory
	id      string
	token   string
	sink    connector.EventSink

	mu        sync.Mutex
	started   bool
	bot       *Bot
	challenge *connector.Challenge
}

// Start verifies the token and reports the session as connected
func (a *Adapter) Start(ctx context.Context) error {
	bot, err := a.factory.getMe(ctx, a.token)
	if err != nil {
		return err
	}

	a.mu.Lock()
	wasStarted := a.started
	a.started = true
	a.bot = bot
	a.mu.Unlock()

	if !wasStarted {
		a.sink(connector.Event{Kind: connector.EventConnected, At: a.factory.cfg.Now()})
		a.factory.cfg.Logger.WithFields(logrus.Fields{
			"session_id": a.id,
			"bot":        bot.Username,
		}).Info("Telegram bot verified")
	}
	return nil
}

// Stop forgets the verified bot. Bot API sessions hold no remote state.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = false
	a.bot = nil
	a.challenge = nil
	return nil
}

// QRChallenge returns a QR of the bot's t.me link
func (a *Adapter) QRChallenge(ctx context.Context) (*connector.Challenge, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started || a.bot == nil {
		return nil, connector.ErrNotStarted
	}
	if a.challenge != nil {
		return a.challenge, nil
	}

	png, err := qrcode.Encode(BotLink(a.bot.Username), qrcode.Medium, a.factory.cfg.QRSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	a.challenge = &connector.Challenge{
		Payload:  dataURLPrefix + base64.StdEncoding.EncodeToString(png),
		IssuedAt: a.factory.cfg.Now(),
	}
	return a.challenge, nil
}

// Status re-verifies the token of a started adapter
func (a *Adapter) Status(ctx context.Context) (connector.LinkStatus, error) {
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		return connector.LinkStopped, nil
	}

	_, err := a.factory.getMe(ctx, a.token)
	switch {
	case err == nil:
		return connector.LinkConnected, nil
	case errors.Is(err, ErrUnauthorized):
		return connector.LinkFailed, nil
	default:
		return "", err
	}
}

// Probe calls getMe
func (a *Adapter) Probe(ctx context.Context) error {
	_, err := a.factory.getMe(ctx, a.token)
	return err
}

// Bot returns the verified bot, or nil before Start
func (a *Adapter) Bot() *Bot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bot
}

// BotLink returns the public deep link for a bot username
func BotLink(username string) string {
	return "https://t.me/" + strings.TrimPrefix(username, "@")
}
