package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestPipelineMetricsCountsStagesAndRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)

	m.ObserveStage("render", 10*time.Millisecond)
	m.ObserveStage("upload", 2*time.Second)
	m.IncStageFailure("upload")
	m.IncRun(OutcomeFailed)
	m.IncRun(OutcomeDelivered)
	m.IncRun(OutcomeDelivered)

	if got := testutil.ToFloat64(m.stageFailures.WithLabelValues("upload")); got != 1 {
		t.Fatalf("expected upload failures=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues(OutcomeDelivered)); got != 2 {
		t.Fatalf("expected delivered=2, got %f", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got, err := fetchHistogramSum(mfs, "report_pipeline_stage_duration_seconds", "stage", "upload"); err != nil {
		t.Fatalf("fetch histogram: %v", err)
	} else if got < 2 {
		t.Fatalf("expected upload duration sum >= 2, got %f", got)
	}
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var m *PipelineMetrics
	m.ObserveStage("render", time.Second)
	m.IncStageFailure("render")
	m.IncRun(OutcomeSkipped)

	unregistered := NewPipelineMetrics(nil)
	unregistered.IncRun(OutcomeSkipped)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabels(metric.GetLabel(), map[string]string{label: value}) {
				return metric.GetHistogram().GetSampleSum(), nil
			}
		}
		return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
	}
	return 0, fmt.Errorf("metric %q not found", name)
}
