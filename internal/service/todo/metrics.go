package todo

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sweepMetricsOnce sync.Once
	sweepRuns        prometheus.Counter
	sweepPromoted    prometheus.Counter
	sweepDuration    prometheus.Histogram
)

func initSweepMetrics() {
	sweepMetricsOnce.Do(func() {
		sweepRuns = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remindd",
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Count of completed reminder sweeps",
		})
		sweepPromoted = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remindd",
			Subsystem: "sweep",
			Name:      "promoted_total",
			Help:      "Todos promoted from PENDING to REMINDER_DUE",
		})
		sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "remindd",
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of reminder sweeps",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		})

		sweepRuns = registerCounter(sweepRuns)
		sweepPromoted = registerCounter(sweepPromoted)
		if err := prometheus.Register(sweepDuration); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
					sweepDuration = existing
				}
			}
		}
	})
}

func registerCounter(c prometheus.Counter) prometheus.Counter {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return c
}
