package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks summarization stages and webhook intake.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	summaries     *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "summary_stage_duration_seconds",
		Help:      "Duration of summarization pipeline stages.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "summary_failures_total",
		Help:      "Summarization runs that ended in the failed state, by stage.",
	}, []string{"stage"})
	summaries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "summaries_persisted_total",
		Help:      "Summaries written to commits or pull requests.",
	}, []string{"kind"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Inbound webhook deliveries by platform, event type and outcome.",
	}, []string{"platform", "event", "outcome"})
	reg.MustRegister(stageDuration, failures, summaries, deliveries)
	return &PipelineMetrics{
		stageDuration: stageDuration,
		failures:      failures,
		summaries:     summaries,
		deliveries:    deliveries,
	}
}

func (p *PipelineMetrics) ObserveStage(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(normalizeLabel(stage)).Observe(d.Seconds())
}

func (p *PipelineMetrics) IncFailure(stage string) {
	if p == nil || p.failures == nil {
		return
	}
	p.failures.WithLabelValues(normalizeLabel(stage)).Inc()
}

func (p *PipelineMetrics) IncPersisted(kind string) {
	if p == nil || p.summaries == nil {
		return
	}
	p.summaries.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncDelivery counts one webhook delivery. outcome is accepted, ignored, duplicate, rejected or error.
func (p *PipelineMetrics) IncDelivery(platform, event, outcome string) {
	if p == nil || p.deliveries == nil {
		return
	}
	p.deliveries.WithLabelValues(normalizeLabel(platform), normalizeLabel(event), normalizeLabel(outcome)).Inc()
}
