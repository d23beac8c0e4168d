package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XOOChatx/Chat-X/internal/events"
	"github.com/XOOChatx/Chat-X/internal/models"
	"github.com/XOOChatx/Chat-X/internal/security"
	"github.com/XOOChatx/Chat-X/internal/session"
	"github.com/XOOChatx/Chat-X/pkg/connector"
)

const (
	testToken  = "test-admin-token"
	testSecret = "test-webhook-secret"
)

type stubAdapter struct {
	spec    connector.Spec
	pending *atomic.Bool
}

func (a *stubAdapter) Start(ctx context.Context) error { return nil }
func (a *stubAdapter) Stop(ctx context.Context) error  { return nil }
func (a *stubAdapter) Probe(ctx context.Context) error { return nil }

func (a *stubAdapter) QRChallenge(ctx context.Context) (*connector.Challenge, error) {
	if a.pending.Load() {
		return nil, connector.ErrChallengeUnavailable
	}
	return &connector.Challenge{
		Payload:   "data:image/png;base64,qr-" + a.spec.SessionID,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Minute),
	}, nil
}

func (a *stubAdapter) Status(ctx context.Context) (connector.LinkStatus, error) {
	return connector.LinkAwaitingScan, nil
}

type testEnv struct {
	server  *Server
	manager *session.Manager
	pending *atomic.Bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	pending := &atomic.Bool{}
	factory := connector.FactoryFunc(func(spec connector.Spec) (connector.Adapter, error) {
		return &stubAdapter{spec: spec, pending: pending}, nil
	})
	manager := session.NewManager(factory, nil, events.NewBroadcaster(16, logger), logger, session.Options{
		QRRequestTimeout: time.Second,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = manager.Close(ctx)
	})

	cfg := &models.Config{
		Server: models.ServerConfig{
			AdminToken:          testToken,
			RateLimitPerMinute:  6000,
			RateLimitBurst:      100,
			WebhookMaxSkewSec:   300,
			QRRequestTimeoutSec: 1,
			CORSOrigins:         []string{"https://console.example.com"},
		},
		WhatsApp: models.WhatsAppConfig{WebhookSecret: testSecret},
	}
	server, err := NewServer(cfg, manager, logger)
	require.NoError(t, err)
	return &testEnv{server: server, manager: manager, pending: pending}
}

func (e *testEnv) do(t *testing.T, method, target, body string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if admin {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func (e *testEnv) webhook(t *testing.T, payload string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(payload))
	if sign {
		req.Header.Set(security.WebhookSignatureHeader, security.SignWebhook(testSecret, []byte(payload)))
		req.Header.Set(security.WebhookTimestampHeader, strconv.FormatInt(time.Now().Unix(), 10))
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_HandleHealth(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.CreateSession(context.Background(), session.CreateRequest{ID: "s1"})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	body := decodeBody(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]interface{}{"CREATED": float64(1)}, body["sessions"])
}

func TestServer_AdminRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/sessions", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/sessions", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, decodeBody(t, w)["sessions"])
}

func TestServer_PreflightSkipsAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/wa/sessions/create", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://console.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_CreateSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/wa/sessions/create", `{"sessionId":"s1"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", decodeBody(t, w)["sessionId"])

	w = env.do(t, http.MethodPost, "/wa/sessions/create", `{"sessionId":"s1"}`, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_SESSION", decodeBody(t, w)["code"])

	w = env.do(t, http.MethodPost, "/wa/sessions/create", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["sessionId"])

	w = env.do(t, http.MethodPost, "/wa/sessions/create", `{"provider":"signal"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/wa/sessions/create", `not json`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_LoginQR(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.CreateSession(context.Background(), session.CreateRequest{ID: "s1"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCode   string
	}{
		{"missing session id", "/wa/login/qr", http.StatusBadRequest, "MISSING_SESSION_ID"},
		{"undefined session id", "/wa/login/qr?sessionId=undefined", http.StatusBadRequest, "MISSING_SESSION_ID"},
		{"unknown session", "/wa/login/qr?sessionId=nope", http.StatusNotFound, "UNKNOWN_SESSION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.target, "", true)
			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}

	w := env.do(t, http.MethodGet, "/wa/login/qr?sessionId=s1", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "data:image/png;base64,qr-s1", body["dataUrl"])
	assert.NotEmpty(t, body["expiresAt"])

	w = env.do(t, http.MethodGet, "/wa/login/status?sessionId=s1", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "QR_READY", body["status"])
}

func TestServer_LoginQRPending(t *testing.T) {
	env := newTestEnv(t)
	env.pending.Store(true)
	_, err := env.manager.CreateSession(context.Background(), session.CreateRequest{ID: "s1"})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/wa/login/qr?sessionId=s1", "", true)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["pending"])
}

func TestServer_WhatsAppWebhook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.manager.CreateSession(ctx, session.CreateRequest{ID: "s1"})
	require.NoError(t, err)
	_, err = env.manager.GetOrCreateQR(ctx, "s1")
	require.NoError(t, err)

	working := `{"event":"session.status","session":"s1","payload":{"status":"WORKING"}}`

	w := env.webhook(t, working, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.webhook(t, working, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/wa/sessions/connected", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decodeBody(t, w)["sessions"].([]interface{})
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].(map[string]interface{})["session_id"])

	t.Run("unknown session is acknowledged", func(t *testing.T) {
		w := env.webhook(t, `{"event":"session.status","session":"ghost","payload":{"status":"WORKING"}}`, true)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decodeBody(t, w)["ignored"])
	})

	t.Run("unhandled event is acknowledged", func(t *testing.T) {
		w := env.webhook(t, `{"event":"presence.update","session":"s1","payload":{}}`, true)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decodeBody(t, w)["ignored"])
	})

	t.Run("malformed event", func(t *testing.T) {
		w := env.webhook(t, `{"session":"s1"}`, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_SessionActions(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.CreateSession(context.Background(), session.CreateRequest{ID: "s1"})
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/sessions/s1/reset", "", true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", decodeBody(t, w)["code"])

	w = env.do(t, http.MethodPost, "/sessions/s1/reconnect", "", true)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/sessions/nope/reconnect", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/sessions/s1", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["ok"])

	w = env.do(t, http.MethodGet, "/wa/login/status?sessionId=s1", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/sessions/s1", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_EventStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	conn, _, err := websocket.Dial(ctx, wsURL+"?sessionId=s1&token="+testToken, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool {
		return env.manager.Events().SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = env.manager.CreateSession(ctx, session.CreateRequest{ID: "other"})
	require.NoError(t, err)
	_, err = env.manager.CreateSession(ctx, session.CreateRequest{ID: "s1"})
	require.NoError(t, err)
	_, err = env.manager.GetOrCreateQR(ctx, "s1")
	require.NoError(t, err)

	for {
		var evt events.Event
		require.NoError(t, wsjson.Read(ctx, conn, &evt))
		assert.Equal(t, "s1", evt.SessionID)
		if evt.State == string(session.StateQRReady) {
			break
		}
	}
}

func TestSessionIDParam(t *testing.T) {
	tests := []struct {
		query  string
		wantID string
		wantOK bool
	}{
		{"sessionId=s1", "s1", true},
		{"sessionId=%20s1%20", "s1", true},
		{"sessionId=undefined", "", false},
		{"sessionId=", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/wa/login/qr?"+tt.query, nil)
		id, ok := sessionIDParam(req)
		assert.Equal(t, tt.wantID, id, tt.query)
		assert.Equal(t, tt.wantOK, ok, tt.query)
	}
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t,
		[]string{"console.example.com", "*.example.org", "localhost:5173"},
		originPatterns([]string{"https://console.example.com/", " *.example.org ", "http://localhost:5173", ""}),
	)
}
