package backup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lastSyncTimestamp is a Gauge that captures the timestamp of the last
	// successful sync of a repository
	lastSyncTimestamp *prometheus.GaugeVec
	// syncCount is a Counter vector of repository syncs
	syncCount *prometheus.CounterVec
	// syncLatency is a Histogram vector that keeps track of repository sync durations
	syncLatency *prometheus.HistogramVec
	// runRepositories is a Gauge vector of the last run's summary counts
	runRepositories *prometheus.GaugeVec
	// lastRunTimestamp is a Gauge that captures the timestamp of the last run
	lastRunTimestamp prometheus.Gauge
	// lastRunComplete is 1 if the last run processed every discovered repository
	lastRunComplete prometheus.Gauge
)

// EnableMetrics will enable metrics collection for backup runs.
// Available metrics are...
//   - repository_last_sync_timestamp - (tags: repo)
//     A Gauge that captures the Timestamp of the last successful sync per repo.
//   - repository_sync_count - (tags: repo,action)
//     A Counter for each repo sync, tagged with the result (action=cloned|updated|unchanged|failed)
//   - repository_sync_latency_seconds - (tags: repo)
//     A Histogram that keeps track of the sync latency per repo.
//   - run_repositories - (tags: state)
//     A Gauge of the last run's counts (state=discovered|processed|updated|failed)
//   - run_last_timestamp, run_last_complete
//     Gauges for the last run's start time and completeness
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	factory := promauto.With(registerer)

	lastSyncTimestamp = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "repository_last_sync_timestamp",
		Help:      "Timestamp of the last successful repository sync",
	},
		[]string{
			// full name of the repository
			"repo",
		},
	)

	syncCount = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "repository_sync_count",
		Help:      "Count of repository sync operations",
	},
		[]string{
			// full name of the repository
			"repo",
			// terminal state of the sync
			"action",
		},
	)

	syncLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "repository_sync_latency_seconds",
		Help:      "Latency for repository sync",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300, 600},
	},
		[]string{
			// full name of the repository
			"repo",
		},
	)

	runRepositories = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "run_repositories",
		Help:      "Repository counts of the last backup run",
	},
		[]string{
			// discovered, processed, updated or failed
			"state",
		},
	)

	lastRunTimestamp = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "run_last_timestamp",
		Help:      "Start timestamp of the last backup run",
	})

	lastRunComplete = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "run_last_complete",
		Help:      "Whether the last backup run processed every discovered repository",
	})
}

// recordSync records a repository sync attempt by updating all the
// relevant metrics
func recordSync(repo string, action Action, start time.Time) {
	// if metrics not enabled return
	if syncCount == nil || lastSyncTimestamp == nil || syncLatency == nil {
		return
	}
	if action != ActionFailed {
		lastSyncTimestamp.With(prometheus.Labels{
			"repo": repo,
		}).Set(float64(time.Now().Unix()))
	}
	syncCount.With(prometheus.Labels{
		"repo":   repo,
		"action": string(action),
	}).Inc()
	syncLatency.WithLabelValues(repo).Observe(time.Since(start).Seconds())
}

func recordRun(s *Summary) {
	// if metrics not enabled return
	if runRepositories == nil || lastRunTimestamp == nil || lastRunComplete == nil {
		return
	}
	runRepositories.WithLabelValues("discovered").Set(float64(s.Discovered))
	runRepositories.WithLabelValues("processed").Set(float64(s.Processed))
	runRepositories.WithLabelValues("updated").Set(float64(s.Updated))
	runRepositories.WithLabelValues("failed").Set(float64(s.Failed))
	lastRunTimestamp.Set(float64(s.Started.Unix()))
	if s.Complete() {
		lastRunComplete.Set(1)
	} else {
		lastRunComplete.Set(0)
	}
}
