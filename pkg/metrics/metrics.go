// Package metrics registers the service's Prometheus collectors on the default
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Claims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_claims_total",
			Help: "Claim attempts by outcome (claimed, already_handled, error).",
		},
		[]string{"outcome"},
	)

	Completions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_completions_total",
			Help: "Completion attempts by outcome (completed, lock_lost, error).",
		},
		[]string{"outcome"},
	)

	Effects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_effects_total",
			Help: "Work effect executions by result (ok, failed).",
		},
		[]string{"result"},
	)

	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_dispatch_total",
			Help: "Batch dispatches by result (ok, failed).",
		},
		[]string{"result"},
	)

	BatchRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_rows",
			Help:    "Number of rows per assembled batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1 to ~8k rows
		},
	)
)
