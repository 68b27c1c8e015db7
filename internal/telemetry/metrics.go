// Package telemetry provides Prometheus metrics for the wrapper's
// evaluation, guardrail, and quarantine paths, served on a loopback-only
// debug listener (metrics are an ambient operational concern, not part of
// the MCP wire surface).
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for mcp-context-protector. Pass
// to components that need to record observations.
type Metrics struct {
	EvaluationsTotal   *prometheus.CounterVec
	GuardrailVerdicts  *prometheus.CounterVec
	GuardrailDuration  prometheus.Histogram
	QuarantineDepth    prometheus.Gauge
	QuarantineReleases prometheus.Counter
	ToolCallsTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EvaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_context_protector",
				Name:      "evaluations_total",
				Help:      "Total configuration evaluations, by outcome",
			},
			[]string{"outcome"}, // outcome=fully_approved/partial/blocked_all
		),
		GuardrailVerdicts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_context_protector",
				Name:      "guardrail_verdicts_total",
				Help:      "Total guardrail scan verdicts, by result",
			},
			[]string{"result"}, // result=clean/suspicious/timeout/no_provider
		),
		GuardrailDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "mcp_context_protector",
				Name:      "guardrail_scan_duration_seconds",
				Help:      "Guardrail provider scan duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		QuarantineDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcp_context_protector",
				Name:      "quarantine_depth",
				Help:      "Number of quarantined entries not yet released",
			},
		),
		QuarantineReleases: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcp_context_protector",
				Name:      "quarantine_releases_total",
				Help:      "Total quarantine entries released via quarantine_release",
			},
		),
		ToolCallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_context_protector",
				Name:      "tool_calls_total",
				Help:      "Total tools/call requests, by disposition",
			},
			[]string{"disposition"}, // disposition=forwarded/blocked/quarantined
		),
	}
}
