// Package observability exposes Prometheus metrics for the analysis
// pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RunsStarted   prometheus.Counter
	RunsCompleted prometheus.Counter
	RunsFailed    *prometheus.CounterVec
	RunsCancelled prometheus.Counter

	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec

	CaptureFailures prometheus.Counter
	AnalyzerErrors  *prometheus.CounterVec

	LLMTokens *prometheus.CounterVec
	LLMCost   prometheus.Counter
}

// New registers the pipeline metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitegrader_runs_started_total",
			Help: "Analysis runs started.",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitegrader_runs_completed_total",
			Help: "Analysis runs completed successfully.",
		}),
		RunsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegrader_runs_failed_total",
			Help: "Analysis runs failed, by error code.",
		}, []string{"code"}),
		RunsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitegrader_runs_cancelled_total",
			Help: "Analysis runs cancelled.",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitegrader_stage_duration_seconds",
			Help:    "Wall time per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"stage"}),
		StageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegrader_stage_errors_total",
			Help: "Stage errors, by stage.",
		}, []string{"stage"}),
		CaptureFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitegrader_capture_failures_total",
			Help: "Individual page captures that failed.",
		}),
		AnalyzerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegrader_analyzer_errors_total",
			Help: "Analyzer modules that returned an error result, by module.",
		}, []string{"module"}),
		LLMTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegrader_llm_tokens_total",
			Help: "LLM tokens consumed, by direction.",
		}, []string{"direction"}),
		LLMCost: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitegrader_llm_cost_units_total",
			Help: "Accumulated LLM cost units.",
		}),
	}
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

// RecordUsage records LLM consumption for one module result.
func (m *Metrics) RecordUsage(inputTokens, outputTokens int, cost float64) {
	if m == nil {
		return
	}
	m.LLMTokens.WithLabelValues("input").Add(float64(inputTokens))
	m.LLMTokens.WithLabelValues("output").Add(float64(outputTokens))
	m.LLMCost.Add(cost)
}
