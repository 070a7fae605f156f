package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goal",
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Scheduler runs, by outcome.",
	}, []string{"outcome"})

	recalculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goal",
		Name:      "recalculations_total",
		Help:      "Scheduled goal recalculations, by result.",
	}, []string{"result"})

	expirationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goal",
		Name:      "expirations_total",
		Help:      "Overdue goals processed by the scheduler, by result.",
	}, []string{"result"})

		lastScanTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "goal",
		Subsystem: "scheduler",
		Name:      "last_scan_timestamp_seconds",
		Help:      "Unix time of the last successful scan.",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "goal",
		Subsystem: "scheduler",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a scheduler run.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	})
)
