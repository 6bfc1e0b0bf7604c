package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics records upstream API traffic. A nil *APIMetrics is a no-op.
type APIMetrics struct {
	requests  *prometheus.CounterVec
	retries   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	refreshes *prometheus.CounterVec
}

// NewAPIMetrics registers the upstream metrics on reg.
func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	if reg == nil {
		return &APIMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopads_upstream_requests_total",
		Help: "Upstream API attempts by api and status code.",
	}, []string{"api", "code"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopads_upstream_retries_total",
		Help: "Upstream API retries by api and reason.",
	}, []string{"api", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopads_upstream_request_duration_seconds",
		Help:    "Duration of a single upstream attempt.",
		Buckets: prometheus.DefBuckets,
	}, []string{"api"})
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopads_token_refresh_total",
		Help: "Token exchanges by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(requests, retries, duration, refreshes)
	return &APIMetrics{
		requests:  requests,
		retries:   retries,
		duration:  duration,
		refreshes: refreshes,
	}
}

// ObserveAttempt records one attempt; code 0 means a transport failure.
func (m *APIMetrics) ObserveAttempt(api string, code int, d time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requests.WithLabelValues(normalizeLabel(api), label).Inc()
	m.duration.WithLabelValues(normalizeLabel(api)).Observe(d.Seconds())
}

func (m *APIMetrics) IncRetry(api, reason string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(api), normalizeLabel(reason)).Inc()
}

func (m *APIMetrics) IncRefresh(ok bool) {
	if m == nil || m.refreshes == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
