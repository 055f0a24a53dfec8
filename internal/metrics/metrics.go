// Package metrics defines the prometheus collectors of the lineage resolver.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons.
const (
	ReasonNoWaveform      = "no_waveform"
	ReasonNoChannel       = "no_channel"
	ReasonNoAnalysis      = "no_analysis_channel"
	ReasonRejected        = "rejected"
	ReasonUnknownIdentity = "unknown_identity"
	ReasonUnknownAccount  = "unknown_account"
	ReasonNoUsages        = "no_usages"
)

// Metrics groups the resolver collectors.
type Metrics struct {
	HypothesesBuilt *prometheus.CounterVec
	Skipped         *prometheus.CounterVec
	ParentRules     *prometheus.CounterVec
	ResolveDuration *prometheus.HistogramVec
	FilterPartial   prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HypothesesBuilt: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lineage_hypotheses_built_total",
			Help: "Hypotheses handed back to callers, by stage and source record.",
		}, []string{"stage", "source"}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lineage_hypotheses_skipped_total",
			Help: "Candidates dropped during resolution, by reason.",
		}, []string{"reason"}),
		ParentRules: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lineage_parent_rule_total",
			Help: "Association parent rules applied.",
		}, []string{"rule"}),
		ResolveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lineage_resolve_duration_seconds",
			Help:    "Duration of resolver entry points.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"operation"}),
		FilterPartial: f.NewCounter(prometheus.CounterOpts{
			Name: "lineage_filter_partial_total",
			Help: "Filter record lookups that returned a partial result.",
		}),
	}
}

// Discard returns collectors registered nowhere.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveSince records the duration of operation started at start.
func (m *Metrics) ObserveSince(operation string, start time.Time) {
	m.ResolveDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
