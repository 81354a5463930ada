// package metrics defines the Prometheus collectors exported on /metrics
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "melodari"

// Registry holds every melodari collector plus the Go runtime and process collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// AuthChecks counts liveness probes by provider and result (ok, refreshed, expired, error).
	AuthChecks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_checks_total",
		Help:      "Token liveness probes by outcome.",
	}, []string{"provider", "result"})

	// TokenRefreshes counts refresh attempts by provider and result (ok, error).
	TokenRefreshes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Token refresh attempts by outcome.",
	}, []string{"provider", "result"})

	// Conversions counts playlist conversions by source, target and result (ok, error).
	Conversions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversions_total",
		Help:      "Cross-platform playlist conversions by outcome.",
	}, []string{"source", "target", "result"})

	// SongMatches counts song searches on the target platform by result (matched, missed).
	SongMatches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "song_matches_total",
		Help:      "Song searches during conversion by outcome.",
	}, []string{"target", "result"})

	// HTTPRequests counts served HTTP requests by method and status code.
	HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served by method and status.",
	}, []string{"method", "status"})

	// HTTPDuration observes request latency by method.
	HTTPDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Result maps an error to the "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
