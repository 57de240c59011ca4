package syncengine

import "github.com/prometheus/client_golang/prometheus"

// metrics are registered lazily against a caller-supplied registerer so
// multiple Engines (e.g. in tests) don't collide on the default registry.
type metrics struct {
	syncDuration prometheus.Histogram
	syncFailures prometheus.Counter
	keyRefreshes prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "matrixsdk",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one /sync request-and-handle pass.",
		}),
		syncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matrixsdk",
			Subsystem: "sync",
			Name:      "failures_total",
			Help:      "Number of sync passes that ended in an error.",
		}),
		keyRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matrixsdk",
			Subsystem: "keys",
			Name:      "refresh_total",
			Help:      "Number of device-key refresh passes performed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.syncDuration, m.syncFailures, m.keyRefreshes)
	}
	return m
}
