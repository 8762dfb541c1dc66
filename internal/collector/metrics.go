package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkpulse_collector_cycles_total",
			Help: "Collection cycles by outcome",
		},
		[]string{"status"},
	)

	parkFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkpulse_collector_park_failures_total",
			Help: "Per-park collection failures by stage",
		},
		[]string{"stage"},
	)

	snapshotsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkpulse_collector_ride_snapshots_written_total",
			Help: "Ride status snapshots persisted",
		},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parkpulse_collector_cycle_duration_seconds",
			Help:    "Wall time of one full collection cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
)
