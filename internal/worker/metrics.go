package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job result labels. "lost" covers claims superseded by another worker
// after lease expiry, which is expected under contention.
const (
	resultSubmitted = "submitted"
	resultRetryable = "retryable"
	resultPermanent = "permanent"
	resultLost      = "lost"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grimoire",
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Jobs processed by final result.",
	}, []string{"result"})

	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "grimoire",
		Subsystem: "worker",
		Name:      "generation_duration_seconds",
		Help:      "Wall-clock duration of guide generation calls.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~1h
	})

	renewFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grimoire",
		Subsystem: "worker",
		Name:      "renew_failures_total",
		Help:      "Heartbeat renewals that failed and cancelled generation.",
	})
)
