package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VisionAttempts counts vision calls by outcome ("success", "error")
	VisionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfscan_vision_attempts_total",
			Help: "Total number of vision service attempts",
		},
		[]string{"outcome"},
	)

	// VisionLatency tracks the latency of individual vision attempts
	VisionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelfscan_vision_latency_seconds",
			Help:    "Vision service call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
	)

	// RateLimitDecisions counts rate limiter grants and denials per caller
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfscan_rate_limit_decisions_total",
			Help: "Total number of rate limiter decisions",
		},
		[]string{"caller", "outcome"},
	)

	// BooksPersisted counts books written to the library by the enrichment sequencer
	BooksPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfscan_books_persisted_total",
			Help: "Total number of enriched books persisted",
		},
		[]string{"outcome"},
	)

	// Scans counts finished scans by terminal state
	Scans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfscan_scans_total",
			Help: "Total number of scans by result",
		},
		[]string{"result"},
	)
)
