package goal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/saulo-duarte/chronos-goals/internal/history"
)

var (
	progressUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goal",
		Name:      "progress_updates_total",
		Help:      "Progress changes committed, by history source.",
	}, []string{"source"})

	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goal",
		Name:      "status_transitions_total",
		Help:      "Goal status transitions, by target status.",
	}, []string{"to"})

	metricFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goal",
		Name:      "metric_provider_failures_total",
		Help:      "Metric provider failures during recalculation.",
	}, []string{"kind"})
)

func observeUpdate(source history.Source) {
	progressUpdates.WithLabelValues(string(source)).Inc()
}
