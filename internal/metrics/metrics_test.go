package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(SessionsByState.WithLabelValues("QR_READY"))

	RecordTransition("", "CREATED")
	RecordTransition("CREATED", "QR_PENDING")
	RecordTransition("QR_PENDING", "QR_READY")

	assert.Equal(t, before+1, testutil.ToFloat64(SessionsByState.WithLabelValues("QR_READY")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(SessionTransitions.WithLabelValues("CREATED", "QR_PENDING")), 1.0)

	RecordTransition("QR_READY", "")
	assert.Equal(t, before, testutil.ToFloat64(SessionsByState.WithLabelValues("QR_READY")))
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/health", "200"))
	RecordHTTPRequest("GET", "/health", http.StatusOK, 5*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/health", "200")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	EventsDropped.Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "chatx_events_dropped_total"))
}
