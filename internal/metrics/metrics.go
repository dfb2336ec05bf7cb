// Package metrics holds the Prometheus collectors for the chat server.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LatencyBuckets spans quick replies up to slow summarisation calls.
var LatencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Backend call outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeHTTPError    = "http_error"
	OutcomeNetworkError = "network_error"
	OutcomeDecodeError  = "decode_error"
)

var (
	// RequestsTotal counts inbound HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siap_http_requests_total",
			Help: "Inbound HTTP requests",
		},
		[]string{"method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "siap_http_request_duration_seconds",
			Help:    "Inbound HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// BackendCallsTotal counts outbound chat calls by outcome.
	BackendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siap_backend_calls_total",
			Help: "Outbound chat backend calls",
		},
		[]string{"outcome"},
	)

	BackendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "siap_backend_latency_seconds",
			Help:    "Outbound chat backend latency",
			Buckets: LatencyBuckets,
		},
	)

	// SubmissionsRejected counts submits that never reached the backend.
	SubmissionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siap_submissions_rejected_total",
			Help: "Submissions rejected before sending",
		},
		[]string{"reason"},
	)

	SubmissionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "siap_submissions_in_flight",
			Help: "Submissions currently waiting on the backend",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		BackendCallsTotal,
		BackendLatency,
		SubmissionsRejected,
		SubmissionsInFlight,
	)
}

// ObserveBackend records one finished backend call.
func ObserveBackend(outcome string, took time.Duration) {
	BackendCallsTotal.WithLabelValues(outcome).Inc()
	BackendLatency.Observe(took.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and duration.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.status/100)+"xx").Inc()
		RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack is needed for websocket upgrades behind this middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
