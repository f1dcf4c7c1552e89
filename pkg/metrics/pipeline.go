package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline outcomes recorded per completion run.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// PipelineMetrics tracks the document pipeline run by the completion worker.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	runs          *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "report_pipeline_stage_duration_seconds",
		Help:    "Duration of each report pipeline stage in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})
	stageFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_pipeline_stage_failures_total",
		Help: "Report pipeline stage failures.",
	}, []string{"stage"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_pipeline_runs_total",
		Help: "Report pipeline runs by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(stageDuration, stageFailures, runs)
	return &PipelineMetrics{
		stageDuration: stageDuration,
		stageFailures: stageFailures,
		runs:          runs,
	}
}

// ObserveStage records how long a stage took.
func (p *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncStageFailure counts a failure of the named stage.
func (p *PipelineMetrics) IncStageFailure(stage string) {
	if p == nil || p.stageFailures == nil {
		return
	}
	p.stageFailures.WithLabelValues(normalizeLabel(stage)).Inc()
}

// IncRun counts a finished run with the given outcome.
func (p *PipelineMetrics) IncRun(outcome string) {
	if p == nil || p.runs == nil {
		return
	}
	p.runs.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
