// Package obs holds the gateway's Prometheus metrics and the HTTP
// instrumentation wrapper.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	exchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_exchanges_total",
			Help: "Token exchange attempts by outcome.",
		},
		[]string{"outcome"},
	)

	verifyFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_verify_failures_total",
			Help: "Token verification failures by validator.",
		},
		[]string{"validator"},
	)

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_rejections_total",
			Help: "Requests rejected by a rate limiter, by scope.",
		},
		[]string{"scope"},
	)

	jwksFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_jwks_fetches_total",
			Help: "JWKS fetches by outcome. Coalesced waiters are not counted.",
		},
		[]string{"outcome"},
	)
)

// Rate limiter scopes.
const (
	ScopeExchange = "exchange"
	ScopeRequests = "requests"
	ScopeTokens   = "tokens"
)

// Init registers all gateway metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		exchangesTotal, verifyFailuresTotal, rateLimitRejections,
		jwksFetchesTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveExchange counts one exchange attempt by outcome tag.
func ObserveExchange(outcome string) {
	exchangesTotal.WithLabelValues(outcome).Inc()
}

// ObserveVerifyFailure counts one verification failure for a validator.
func ObserveVerifyFailure(validator string) {
	verifyFailuresTotal.WithLabelValues(validator).Inc()
}

// ObserveRateLimited counts one rejection for a limiter scope.
func ObserveRateLimited(scope string) {
	rateLimitRejections.WithLabelValues(scope).Inc()
}

// ObserveJWKSFetch counts one real JWKS fetch.
func ObserveJWKSFetch(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	jwksFetchesTotal.WithLabelValues(outcome).Inc()
}

// Instrument wraps a handler with RPS, latency and in-flight tracking.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
