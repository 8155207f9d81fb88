// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Upstream names used as label values.
const (
	UpstreamSearch     = "search"
	UpstreamGeneration = "generation"
)

// Upstream Prometheus metrics.
var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiapi",
			Name:      "upstream_requests_total",
			Help:      "Total number of calls to the search and completion backends",
		},
		[]string{"upstream", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aiapi",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"upstream"},
	)

	CompletionTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aiapi",
			Name:      "completion_tokens_total",
			Help:      "Total tokens reported by the completion backend",
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequestDuration)
		prometheus.MustRegister(httpRequestsTotal)
		prometheus.MustRegister(UpstreamRequestsTotal)
		prometheus.MustRegister(UpstreamRequestDuration)
		prometheus.MustRegister(CompletionTokensTotal)
	})
}

// ObserveUpstream records one upstream call outcome.
func ObserveUpstream(upstream string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	UpstreamRequestsTotal.WithLabelValues(upstream, status).Inc()
	UpstreamRequestDuration.WithLabelValues(upstream).Observe(seconds)
}
