package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/XOOChatx/Chat-X/pkg/circuitbreaker"
	"github.com/XOOChatx/Chat-X/pkg/whatsapp/types"
	"github.com/sirupsen/logrus"
)

const maxResponseBytes = 1 << 20

var (
	// ErrSessionNotFound is returned when the gateway does not know the session
	ErrSessionNotFound = errors.New("gateway session not found")
	// ErrSessionExists is returned when creating a session name already in use
	ErrSessionExists = errors.New("gateway session already exists")
	// ErrQRNotAvailable is returned while the session is not waiting for a scan
	ErrQRNotAvailable = errors.New("gateway QR code not available")
)

// StatusError carries an unexpected gateway response
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("failed to %s, status: %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("failed to %s, status: %d", e.Op, e.StatusCode)
}

// ClientConfig configures the gateway session client
type ClientConfig struct {
	BaseURL            string
	APIKey             string
	Timeout            time.Duration
	CircuitMaxFailures uint32
	CircuitTimeout     time.Duration
	HTTPClient         *http.Client
	Logger             *logrus.Logger
}

type sessionClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewSessionClient creates a client for the gateway session API. All calls
// share one circuit breaker since they hit the same gateway.
func NewSessionClient(cfg ClientConfig) SessionAPI {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &sessionClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		breaker: circuitbreaker.New("waha", cfg.CircuitMaxFailures, cfg.CircuitTimeout, cfg.Logger),
	}
}

type response struct {
	status int
	body   []byte
}

// do sends one request through the breaker. Transport errors and 5xx
// responses count as gateway failures; other statuses are left to callers.
func (sc *sessionClient) do(ctx context.Context, method, path string, payload interface{}) (*response, error) {
	var resp *response
	err := sc.breaker.Execute(ctx, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("failed to marshal payload: %w", err)
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, sc.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if sc.apiKey != "" {
			req.Header.Set(types.HeaderAPIKey, sc.apiKey)
		}

		httpResp, err := sc.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return &StatusError{Op: method + " " + path, StatusCode: httpResp.StatusCode, Message: errorMessage(data)}
		}
		resp = &response{status: httpResp.StatusCode, body: data}
		return nil
	})
	return resp, err
}

func sessionPath(name string, suffix string) string {
	return types.APIBase + types.EndpointSessions + "/" + url.PathEscape(name) + suffix
}

func (sc *sessionClient) Create(ctx context.Context, name string) error {
	resp, err := sc.do(ctx, http.MethodPost, types.APIBase+types.EndpointSessions,
		types.CreateSessionRequest{Name: name, Start: false})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	switch {
	case isSuccess(resp.status):
		return nil
	case resp.status == http.StatusConflict || resp.status == http.StatusUnprocessableEntity:
		return ErrSessionExists
	default:
		return &StatusError{Op: "create session", StatusCode: resp.status, Message: errorMessage(resp.body)}
	}
}

func (sc *sessionClient) Start(ctx context.Context, name string) error {
	resp, err := sc.do(ctx, http.MethodPost, sessionPath(name, types.EndpointStart), nil)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	switch {
	case isSuccess(resp.status):
		return nil
	case resp.status == http.StatusUnprocessableEntity:
		// already started
		return nil
	case resp.status == http.StatusNotFound:
		return ErrSessionNotFound
	default:
		return &StatusError{Op: "start session", StatusCode: resp.status, Message: errorMessage(resp.body)}
	}
}

func (sc *sessionClient) Stop(ctx context.Context, name string) error {
	resp, err := sc.do(ctx, http.MethodPost, sessionPath(name, types.EndpointStop), nil)
	if err != nil {
		return fmt.Errorf("failed to stop session: %w", err)
	}
	switch {
	case isSuccess(resp.status), resp.status == http.StatusNotFound:
		return nil
	default:
		return &StatusError{Op: "stop session", StatusCode: resp.status, Message: errorMessage(resp.body)}
	}
}

func (sc *sessionClient) Get(ctx context.Context, name string) (*types.Session, error) {
	resp, err := sc.do(ctx, http.MethodGet, sessionPath(name, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	switch {
	case resp.status == http.StatusNotFound:
		return nil, ErrSessionNotFound
	case !isSuccess(resp.status):
		return nil, &StatusError{Op: "get session", StatusCode: resp.status, Message: errorMessage(resp.body)}
	}

	var session types.Session
	if err := json.Unmarshal(resp.body, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	session.Status = session.Status.Normalize()
	if session.Name == "" {
		session.Name = name
	}
	return &session, nil
}

func (sc *sessionClient) QR(ctx context.Context, name string) (string, error) {
	path := types.APIBase + "/" + url.PathEscape(name) + types.EndpointAuthQR + "?format=raw"
	resp, err := sc.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get QR code: %w", err)
	}
	switch {
	case resp.status == http.StatusNotFound, resp.status == http.StatusUnprocessableEntity:
		return "", ErrQRNotAvailable
	case !isSuccess(resp.status):
		return "", &StatusError{Op: "get QR code", StatusCode: resp.status, Message: errorMessage(resp.body)}
	}

	var qr types.QRResponse
	if err := json.Unmarshal(resp.body, &qr); err != nil {
		return "", fmt.Errorf("failed to decode QR response: %w", err)
	}
	if qr.Value == "" {
		return "", ErrQRNotAvailable
	}
	return qr.Value, nil
}

func (sc *sessionClient) Breaker() *circuitbreaker.CircuitBreaker {
	return sc.breaker
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func errorMessage(body []byte) string {
	var e types.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
