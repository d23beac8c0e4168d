package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/XOOChatx/Chat-X/pkg/circuitbreaker"
	"github.com/XOOChatx/Chat-X/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestSessionClient(t *testing.T, handler http.HandlerFunc) SessionAPI {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewSessionClient(ClientConfig{
		BaseURL:            server.URL + "/",
		APIKey:             "test-api-key",
		Timeout:            5 * time.Second,
		CircuitMaxFailures: 2,
		CircuitTimeout:     time.Minute,
	})
}

func TestSessionClient_Create(t *testing.T) {
	var created types.CreateSessionRequest
	sc := setupTestSessionClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-api-key", r.Header.Get("X-Api-Key"))
		require.Equal(t, "POST /api/sessions", r.Method+" "+r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		if created.Name == "taken" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	ctx := context.Background()
	require.NoError(t, sc.Create(ctx, "s1"))
	assert.Equal(t, "s1", created.Name)
	assert.False(t, created.Start)

	assert.ErrorIs(t, sc.Create(ctx, "taken"), ErrSessionExists)
}

func TestSessionClient_StartStop(t *testing.T) {
	var calls []string
	sc := setupTestSessionClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/api/sessions/s1/start", "/api/sessions/s1/stop":
			w.WriteHeader(http.StatusCreated)
		case "/api/sessions/running/start":
			w.WriteHeader(http.StatusUnprocessableEntity)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	require.NoError(t, sc.Start(ctx, "s1"))
	require.NoError(t, sc.Start(ctx, "running"), "already started is not an error")
	assert.ErrorIs(t, sc.Start(ctx, "missing"), ErrSessionNotFound)

	require.NoError(t, sc.Stop(ctx, "s1"))
	require.NoError(t, sc.Stop(ctx, "missing"), "stopping an unknown session is a no-op")

	assert.Equal(t, []string{
		"POST /api/sessions/s1/start",
		"POST /api/sessions/running/start",
		"POST /api/sessions/missing/start",
		"POST /api/sessions/s1/stop",
		"POST /api/sessions/missing/stop",
	}, calls)
}

func TestSessionClient_Get(t *testing.T) {
	sc := setupTestSessionClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sessions/s1":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"name":   "s1",
				"status": "working",
				"me":     map[string]string{"id": "15550001@c.us"},
			})
		case "/api/sessions/garbled":
			_, _ = w.Write([]byte("{not json"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	session, err := sc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusWorking, session.Status)
	require.NotNil(t, session.Me)
	assert.Equal(t, "15550001@c.us", session.Me.ID)

	_, err = sc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = sc.Get(ctx, "garbled")
	assert.ErrorContains(t, err, "failed to decode session response")
}

func TestSessionClient_QR(t *testing.T) {
	sc := setupTestSessionClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "raw", r.URL.Query().Get("format"))
		switch r.URL.Path {
		case "/api/s1/auth/qr":
			_ = json.NewEncoder(w).Encode(types.QRResponse{Value: "2@abc,def"})
		case "/api/empty/auth/qr":
			_ = json.NewEncoder(w).Encode(types.QRResponse{})
		default:
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(types.ErrorResponse{Message: "session is not in SCAN_QR_CODE"})
		}
	})

	ctx := context.Background()
	value, err := sc.QR(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "2@abc,def", value)

	_, err = sc.QR(ctx, "empty")
	assert.ErrorIs(t, err, ErrQRNotAvailable)

	_, err = sc.QR(ctx, "working")
	assert.ErrorIs(t, err, ErrQRNotAvailable)
}

func TestSessionClient_UnexpectedStatus(t *testing.T) {
	sc := setupTestSessionClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: "bad api key"})
	})

	err := sc.Create(context.Background(), "s1")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "bad api key")
	assert.Equal(t, circuitbreaker.StateClosed, sc.Breaker().GetState(), "4xx responses do not trip the breaker")
}

func TestSessionClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	sc := setupTestSessionClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := sc.Get(ctx, "s1")
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	}

	_, err := sc.Get(ctx, "s1")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "open breaker short-circuits the request")
}

func TestSessionClient_ContextCancelled(t *testing.T) {
	sc := setupTestSessionClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sc.Get(ctx, "s1")
	require.Error(t, err)
	assert.Equal(t, circuitbreaker.StateClosed, sc.Breaker().GetState())
}
