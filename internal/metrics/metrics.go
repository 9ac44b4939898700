// Package metrics declares the prometheus collectors of the session backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindwave_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindwave_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
		},
		[]string{"method", "path"},
	)

	// Send flow
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindwave_messages_sent_total",
			Help: "User messages accepted by the chat controller",
		},
	)

	SendsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindwave_sends_rejected_total",
			Help: "Sends rejected at the call boundary",
		},
		[]string{"reason"},
	)

	InferenceResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindwave_inference_results_total",
			Help: "Inference call outcomes",
		},
		[]string{"outcome"}, // "ok" or the error kind
	)

	InferenceLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mindwave_inference_latency_seconds",
			Help:    "Inference round trip latency",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Session store
	SnapshotPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindwave_snapshot_persist_failures_total",
			Help: "Snapshot writes that failed and were dropped",
		},
	)

	SnapshotRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindwave_snapshot_recoveries_total",
			Help: "Corrupt snapshots discarded on load",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mindwave_active_sessions",
			Help: "Signed-in sessions held in memory",
		},
	)
)
