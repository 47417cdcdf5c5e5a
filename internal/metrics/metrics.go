// Package metrics exposes Prometheus collectors for the capture/read pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomePreview   = "preview"
	OutcomeWarning   = "warning"
	OutcomeFatal     = "fatal"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

var (
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vets_runs_total",
		Help: "Pipeline runs by outcome",
	}, []string{"outcome"})

	ServiceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vets_service_requests_total",
		Help: "Requests to remote services by result code",
	}, []string{"service", "code"})

	ServiceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vets_service_request_duration_seconds",
		Help:    "Duration of remote service requests including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"service"})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vets_phase_duration_seconds",
		Help:    "Time spent in each non-idle pipeline state",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"state"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vets_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"service"})

	StaleItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vets_stale_items_total",
		Help: "Queue items discarded because their run was no longer current",
	}, []string{"queue"})

	DedupeHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vets_dedupe_hits_total",
		Help: "Captures answered from the previous batch because the frame was unchanged",
	})

	HistoryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vets_history_writes_total",
		Help: "History rows written by result",
	}, []string{"result"})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vets_ws_subscribers",
		Help: "Connected websocket clients",
	})
)

// ObserveService records one logical service call.
func ObserveService(service, code string, d time.Duration) {
	ServiceRequests.WithLabelValues(service, code).Inc()
	ServiceLatency.WithLabelValues(service).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
