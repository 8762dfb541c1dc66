package aggregation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkpulse_aggregation_job_runs_total",
			Help: "Aggregation job runs by type and outcome",
		},
		[]string{"job", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parkpulse_aggregation_job_duration_seconds",
			Help:    "Wall time of one aggregation job run",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)
