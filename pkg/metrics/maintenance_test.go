package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMaintenanceMetricsCountsReconcileOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMaintenanceMetrics(reg)

	m.ObserveRun("user-reconcile", 120*time.Millisecond, nil)
	m.ObserveRun("user-reconcile", 80*time.Millisecond, errors.New("task failed"))
	m.AddItems("user-reconcile", map[string]int64{"done": 3, "retrying": 1, "failed": 0})
	m.AddItems("outbox-retention", map[string]int64{"deleted": 42})
	m.IncLockSkipped()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	cases := []struct {
		family string
		labels map[string]string
		want   float64
	}{
		{"servicereport_maintenance_job_runs_total", map[string]string{"job": "user-reconcile", "result": ResultOK}, 1},
		{"servicereport_maintenance_job_runs_total", map[string]string{"job": "user-reconcile", "result": ResultFailed}, 1},
		{"servicereport_maintenance_items_total", map[string]string{"job": "user-reconcile", "outcome": "done"}, 3},
		{"servicereport_maintenance_items_total", map[string]string{"job": "user-reconcile", "outcome": "retrying"}, 1},
		{"servicereport_maintenance_items_total", map[string]string{"job": "outbox-retention", "outcome": "deleted"}, 42},
		{"servicereport_maintenance_lock_skipped_total", nil, 1},
	}
	for _, tc := range cases {
		if got := counterValue(families, tc.family, tc.labels); got != tc.want {
			t.Fatalf("%s%v = %v, want %v", tc.family, tc.labels, got, tc.want)
		}
	}
	if got := counterValue(families, "servicereport_maintenance_items_total", map[string]string{"outcome": "failed"}); got != 0 {
		t.Fatalf("zero counts must not create series, got %v", got)
	}

	sum := histogramSum(families, "servicereport_maintenance_job_duration_seconds", "user-reconcile")
	if sum < 0.19 || sum > 0.21 {
		t.Fatalf("unexpected duration sum %v", sum)
	}
}

func TestMaintenanceMetricsNilSafe(t *testing.T) {
	var m *MaintenanceMetrics
	m.ObserveRun("x", time.Second, nil)
	m.AddItems("x", map[string]int64{"done": 1})
	m.IncLockSkipped()

	NewMaintenanceMetrics(nil).ObserveRun("x", time.Second, nil)
}

func counterValue(families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabels(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func histogramSum(families []*dto.MetricFamily, name, job string) float64 {
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabels(metric.GetLabel(), map[string]string{"job": job}) {
				return metric.GetHistogram().GetSampleSum()
			}
		}
	}
	return 0
}

func hasLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	for name, value := range want {
		found := false
		for _, pair := range pairs {
			if pair.GetName() == name && pair.GetValue() == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
