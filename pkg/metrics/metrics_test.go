package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobMetricsCountsRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.ObserveDuration("summarize_commit", 250*time.Millisecond)
	m.IncSuccess("summarize_commit")
	m.IncSuccess("summarize_commit")
	m.IncFailure("summarize_commit")
	m.IncFailure("")
	m.AddClaimed(3)
	m.AddClaimed(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("summarize_commit", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("summarize_commit", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", "failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.claimed))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "commitscribe_job_duration_seconds", "job", "summarize_commit")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, sum, 1e-9)
}

func TestPipelineMetricsLabelsDeliveries(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPipelineMetrics(reg)
	metrics.IncDelivery("github", "push", "accepted")
	metrics.IncDelivery("github", "push", "accepted")
	metrics.IncFailure("diff_fetch")
	metrics.ObserveStage("generate", time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "commitscribe_webhook_deliveries_total", "outcome", "accepted"); err != nil || got != 2 {
		t.Fatalf("expected 2 accepted deliveries, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "commitscribe_summary_failures_total", "stage", "diff_fetch"); err != nil || got != 1 {
		t.Fatalf("expected 1 diff_fetch failure, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "commitscribe_summary_stage_duration_seconds", "stage", "generate"); err != nil || got != 1 {
		t.Fatalf("expected generate stage sum 1s, got %f (%v)", got, err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var jobs *JobMetrics
	jobs.IncSuccess("x")
	jobs.AddClaimed(3)
	NewJobMetrics(nil).ObserveDuration("x", time.Second)
	var pipeline *PipelineMetrics
	pipeline.IncPersisted("commit")
	NewPipelineMetrics(nil).IncDelivery("github", "push", "accepted")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
