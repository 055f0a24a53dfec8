package detection

import (
	"log/slog"

	"github.com/danielpatrickdp/lineage-bridge/internal/records"
	"github.com/danielpatrickdp/lineage-bridge/internal/waveform"
)

// #region bundle
// Bundle is everything the resolver gathered for one candidate hypothesis.
type Bundle struct {
	Stage     string
	ID        HypothesisID
	Key       HypothesisKey
	Parent    *HypothesisID
	ParentKey *HypothesisKey

	Arrival  records.Arrival
	Assoc    *records.Assoc
	Waveform waveform.SourcedWaveform
	Channel  waveform.Channel
	Analysis AnalysisWaveform

	Amplitude *AmplitudeMeasurement
}

// #endregion bundle

// #region converter
// HypothesisConverter turns bundles into hypotheses, rejecting bundles
// that are internally inconsistent.
type HypothesisConverter struct {
	log *slog.Logger
}

// NewHypothesisConverter creates a converter that logs its rejections.
func NewHypothesisConverter(logger *slog.Logger) *HypothesisConverter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HypothesisConverter{log: logger}
}

// Convert returns the hypothesis for b, or false when b is rejected.
func (c *HypothesisConverter) Convert(b Bundle) (Hypothesis, bool) {
	if reason := rejection(b); reason != "" {
		c.log.Warn("bundle rejected", "hypothesis", b.Key.String(), "reason", reason)
		return Hypothesis{}, false
	}

	h := Hypothesis{
		ID:          b.ID,
		Key:         b.Key,
		Stage:       b.Stage,
		Parent:      b.Parent,
		ParentKey:   b.ParentKey,
		Station:     b.Arrival.Station,
		Phase:       b.Arrival.Phase,
		ArrivalTime: b.Arrival.Time,
		Channel:     b.Channel,
		Analysis:    b.Analysis,
		Amplitude:   b.Amplitude,
	}
	if b.Assoc != nil {
		orid := b.Assoc.Key.Orid
		h.Orid = &orid
		h.Phase = b.Assoc.Phase
	}
	return h, true
}

func rejection(b Bundle) string {
	switch {
	case b.Assoc != nil && b.Assoc.Key.Arid != b.Arrival.ID:
		return "association belongs to another arrival"
	case b.Key.Arid != b.Arrival.ID:
		return "key does not match arrival"
	case b.Parent != nil && b.Parent.ID == b.ID.ID:
		return "hypothesis is its own parent"
	case b.Channel.Station != "" && b.Channel.Station != b.Arrival.Station:
		return "channel station differs from arrival station"
	case b.Amplitude != nil && b.Amplitude.Channel != nil &&
		b.Amplitude.Channel.Station != "" && b.Amplitude.Channel.Station != b.Arrival.Station:
		return "amplitude channel station differs from arrival station"
	}
	return ""
}

// #endregion converter
