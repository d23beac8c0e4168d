package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatx"

var (
	// Session metrics
	SessionsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "The current number of registered sessions by lifecycle state.",
	}, []string{"state"})
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "The total number of session state transitions.",
	}, []string{"from", "to"})

	// Challenge metrics
	ChallengeGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "challenge_generations_total",
		Help:      "The total number of adapter challenge generations by result.",
	}, []string{"provider", "result"})

	// Reconnect metrics
	ReconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnect_attempts_total",
		Help:      "The total number of reconnect attempts by result.",
	}, []string{"provider", "result"})
	ReconnectsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reconnects_in_flight",
		Help:      "The current number of reconnect attempts holding a concurrency slot.",
	})
	RetryBudgetExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retry_budget_exhausted_total",
		Help:      "The total number of sessions moved to FAILED after exhausting reconnect attempts.",
	})

	// Health metrics
	ProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_failures_total",
		Help:      "The total number of failed health probes.",
	}, []string{"provider"})

	// Event metrics
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "The total number of events published to the broadcaster.",
	}, []string{"kind"})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "The total number of events dropped for lagging subscribers.",
	})
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_subscribers",
		Help:      "The current number of event subscribers.",
	})

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "The total number of HTTP requests served.",
	}, []string{"method", "route", "status"})
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RecordTransition moves one session between state gauges. An empty from
// registers a new session, an empty to removes one.
func RecordTransition(from, to string) {
	if from != "" {
		SessionsByState.WithLabelValues(from).Dec()
	}
	if to != "" {
		SessionsByState.WithLabelValues(to).Inc()
	}
	if from != "" && to != "" {
		SessionTransitions.WithLabelValues(from, to).Inc()
	}
}

// RecordHTTPRequest records the outcome and latency of one HTTP request
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the default Prometheus registry
func Handler() http.Handler {
	return promhttp.Handler()
}
