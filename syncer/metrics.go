package syncer

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the orchestrator's prometheus collectors.
type Metrics struct {
	RulesPushed       prometheus.Counter
	RulesPulled       prometheus.Counter
	ConflictsDetected prometheus.Counter
	SyncDuration      prometheus.Histogram
	QueueDepth        prometheus.Gauge
}

// NewMetrics creates and registers the sync collectors. reg may be nil to
// skip registration (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RulesPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rulesync",
			Name:      "rules_pushed_total",
			Help:      "Rules successfully pushed to the remote store.",
		}),
		RulesPulled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rulesync",
			Name:      "rules_pulled_total",
			Help:      "Rules pulled from the remote store.",
		}),
		ConflictsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rulesync",
			Name:      "conflicts_detected_total",
			Help:      "Sync conflicts detected.",
		}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rulesync",
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rulesync",
			Name:      "offline_queue_depth",
			Help:      "Operations waiting in the offline queue.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.RulesPushed, m.RulesPulled, m.ConflictsDetected, m.SyncDuration, m.QueueDepth)
	}
	return m
}
