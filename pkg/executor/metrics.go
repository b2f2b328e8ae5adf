package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shardquery",
		Name:      "queries_total",
		Help:      "The total number of queries executed.",
	})

	shardScansCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shardquery",
		Name:      "shard_scans_total",
		Help:      "The total number of shard scans, by final state.",
	}, []string{"state"})

	shardScansInFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shardquery",
		Name:      "shard_scans_in_flight",
		Help:      "The number of shard scans currently running.",
	})

	documentsEmittedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shardquery",
		Name:      "documents_emitted_total",
		Help:      "The total number of documents returned to callers.",
	})

	documentsAssembledCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shardquery",
		Name:      "documents_assembled_total",
		Help:      "The total number of documents assembled for evaluation.",
	})

	evaluationErrorsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shardquery",
		Name:      "evaluation_errors_total",
		Help:      "The total number of documents dropped because a predicate failed to evaluate.",
	})

	queryDurationHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shardquery",
		Name:      "query_duration_ms",
		Help:      "The duration (in ms) of a query, from Execute until every shard scan ended.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 300, 1000, 5000, 30000},
	})
)
