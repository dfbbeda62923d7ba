// Package metrics holds the Prometheus instrumentation for hearthd.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	lifecycleOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_lifecycle_operations_total",
			Help: "Lifecycle operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	stopDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hearth_stop_duration_seconds",
			Help:    "Time spent in stop, by mode (graceful or forced)",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 35},
		},
		[]string{"mode"},
	)

	persistenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_persistence_errors_total",
			Help: "Total persistence operation errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	taskFires = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_task_fires_total",
			Help: "Scheduled task triggers by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	scheduledEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_scheduler_entries",
			Help: "Live scheduler registrations",
		},
	)

	backupRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_backup_runs_total",
			Help: "Backup runs by trigger (scheduled, manual) and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	backupPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_backup_archives_pruned_total",
			Help: "Archives deleted by retention",
		},
	)

	installRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_install_runs_total",
			Help: "Provisioning runs by outcome",
		},
		[]string{"outcome"},
	)

	jobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_background_jobs_active",
			Help: "Background jobs currently executing",
		},
	)

	jobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_background_jobs_submitted_total",
			Help: "Background jobs submitted by kind",
		},
		[]string{"kind"},
	)
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// RecordLifecycle counts a start, stop, restart, or command call.
func RecordLifecycle(operation, outcome string) {
	lifecycleOps.WithLabelValues(operation, outcome).Inc()
}

// ObserveStop records how long a stop took. mode is "graceful" or "forced".
func ObserveStop(mode string, d time.Duration) {
	stopDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordPersistenceError increments the persistence error counter. An empty
// errorType is recorded as "unknown".
func RecordPersistenceError(operation, errorType string) {
	if errorType == "" {
		errorType = "unknown"
	}
	persistenceErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordTaskFire counts a scheduled task trigger.
func RecordTaskFire(action, outcome string) {
	taskFires.WithLabelValues(action, outcome).Inc()
}

// SetScheduledEntries reports the number of live scheduler registrations.
func SetScheduledEntries(n int) {
	scheduledEntries.Set(float64(n))
}

// RecordBackup counts a backup run.
func RecordBackup(trigger, outcome string) {
	backupRuns.WithLabelValues(trigger, outcome).Inc()
}

// AddPruned counts archives removed by retention.
func AddPruned(n int) {
	backupPruned.Add(float64(n))
}

// RecordInstall counts a provisioning run.
func RecordInstall(outcome string) {
	installRuns.WithLabelValues(outcome).Inc()
}

// JobStarted and JobFinished track background jobs in flight.
func JobStarted() { jobsActive.Inc() }

func JobFinished() { jobsActive.Dec() }

// RecordJobSubmitted counts a background submission.
func RecordJobSubmitted(kind string) {
	jobsSubmitted.WithLabelValues(kind).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
