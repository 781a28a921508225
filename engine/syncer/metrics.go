package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schematic_sync_requests_total",
		Help: "Solver synchronizations by outcome",
	}, []string{"outcome"})

	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "schematic_sync_duration_seconds",
		Help:    "Duration of solver synchronizations",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	syncCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schematic_sync_coalesced_total",
		Help: "Dirty marks absorbed by an in-flight synchronization",
	})

	syncWakeupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schematic_sync_wakeups_total",
		Help: "Scheduled wake timers that fired",
	})
)
