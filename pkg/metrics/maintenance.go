package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Maintenance sweep run results.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// MaintenanceMetrics covers the cron-worker sweep: per-job runs, how many
// reconciliation tasks or outbox rows each run touched, and skipped sweeps.
type MaintenanceMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	items       *prometheus.CounterVec
	lockSkipped prometheus.Counter
}

// NewMaintenanceMetrics registers the sweep metrics on reg.
func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	m := &MaintenanceMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "servicereport_maintenance_job_duration_seconds",
			Help:    "Duration of maintenance jobs in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicereport_maintenance_job_runs_total",
			Help: "Maintenance job runs by result.",
		}, []string{"job", "result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicereport_maintenance_items_total",
			Help: "Items handled by maintenance jobs, by outcome (done, retrying, failed, deleted).",
		}, []string{"job", "outcome"}),
		lockSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "servicereport_maintenance_lock_skipped_total",
			Help: "Sweeps skipped because another cron worker held the lock.",
		}),
	}
	reg.MustRegister(m.duration, m.runs, m.items, m.lockSkipped)
	return m
}

// ObserveRun records one job run and its result.
func (m *MaintenanceMetrics) ObserveRun(job string, took time.Duration, err error) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	m.runs.WithLabelValues(job, result).Inc()
}

// AddItems adds per-outcome item counts reported by a job.
func (m *MaintenanceMetrics) AddItems(job string, counts map[string]int64) {
	if m == nil || m.items == nil {
		return
	}
	for outcome, n := range counts {
		if n <= 0 {
			continue
		}
		m.items.WithLabelValues(normalizeLabel(job), normalizeLabel(outcome)).Add(float64(n))
	}
}

// IncLockSkipped counts a sweep that did not run because the lock was held.
func (m *MaintenanceMetrics) IncLockSkipped() {
	if m == nil || m.lockSkipped == nil {
		return
	}
	m.lockSkipped.Inc()
}
