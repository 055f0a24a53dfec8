package lineage

import (
	"context"

	"github.com/danielpatrickdp/lineage-bridge/internal/amplitude"
	"github.com/danielpatrickdp/lineage-bridge/internal/detection"
	"github.com/danielpatrickdp/lineage-bridge/internal/filterid"
	"github.com/danielpatrickdp/lineage-bridge/internal/metrics"
	"github.com/danielpatrickdp/lineage-bridge/internal/provenance"
	"github.com/danielpatrickdp/lineage-bridge/internal/records"
	"github.com/danielpatrickdp/lineage-bridge/internal/waveform"
)

// #region candidates
// candidate is one hypothesis the resolver will try to build.
type candidate struct {
	arrival  records.Arrival
	assoc    *records.Assoc
	parent   *detection.HypothesisKey
	decision string
	rule     *ParentRule
	inputs   provenance.DecisionInputs
}

func (r *Resolver) arrivalCandidate(v *view, a records.Arrival) (candidate, ArrivalDecision) {
	prev := v.counterpart(a.ID)
	hasAssoc := len(v.assocs[a.ID]) > 0
	decision := DecideArrival(a, hasAssoc, prev)
	c := candidate{
		arrival:  a,
		parent:   ArrivalParent(a.ID, prev, v.previousAccount()),
		decision: decision.String(),
		inputs: provenance.DecisionInputs{
			HasPreviousStage:   prev.HasPreviousStage,
			HasCurrentAssoc:    hasAssoc,
			HasPreviousArrival: prev.Arrival != nil,
			Phase:              a.Phase,
		},
	}
	if prev.Arrival != nil {
		c.inputs.PreviousPhase = prev.Arrival.Phase
	}
	return c, decision
}

// assocCandidate returns false when the association's arrival is not at
// this stage.
func (r *Resolver) assocCandidate(v *view, as records.Assoc) (candidate, bool) {
	a, ok := v.arrivals[as.Key.Arid]
	if !ok {
		return candidate{}, false
	}
	_, hasPrevAssoc := v.prevAssocs[as.Key]
	ac := AssocCandidate{
		Assoc:            as,
		CurrentArrival:   &a,
		HasPreviousAssoc: hasPrevAssoc,
		Previous:         v.counterpart(as.Key.Arid),
	}
	rule := ChooseParentRule(ac)
	assoc := as
	c := candidate{
		arrival:  a,
		assoc:    &assoc,
		parent:   AssocParent(rule, ac, v.stage.Account, v.previousAccount()),
		decision: "build_from_assoc",
		rule:     &rule,
		inputs: provenance.DecisionInputs{
			HasPreviousStage:   ac.Previous.HasPreviousStage,
			HasCurrentAssoc:    true,
			HasPreviousArrival: ac.Previous.Arrival != nil,
			HasPreviousAssoc:   hasPrevAssoc,
			Phase:              a.Phase,
		},
	}
	if ac.Previous.Arrival != nil {
		c.inputs.PreviousPhase = ac.Previous.Arrival.Phase
	}
	return c, true
}

// #endregion candidates

// #region build
// build resolves the waveform context of c and hands the bundle to the
// converter. It returns false, with no error, when the candidate is skipped
// or rejected.
func (r *Resolver) build(ctx context.Context, v *view, c candidate) (detection.Hypothesis, bool, error) {
	a := c.arrival
	src, ok := v.waveforms[a.ID]
	if !ok {
		r.log.Warn("no waveform source for arrival, skipping", "stage", v.stage.Name, "arid", a.ID)
		r.metrics.Skipped.WithLabelValues(metrics.ReasonNoWaveform).Inc()
		return detection.Hypothesis{}, false, nil
	}

	// waveforms span the whole sourced wfdisc segment
	start, end := src.Wfdisc.Time, src.Wfdisc.EndTime
	param, hasParam := filterid.SelectForArrival(v.arrivalParams, a.ID)
	var filterID *int64
	if hasParam {
		filterID = &param.Value
	}

	ch, ok := r.channels.Resolve(ctx, src, start, end, filterID)
	if !ok {
		r.log.Warn("no channel for arrival, dropping hypothesis", "stage", v.stage.Name, "arid", a.ID, "wfid", src.Wfdisc.ID)
		r.metrics.Skipped.WithLabelValues(metrics.ReasonNoChannel).Inc()
		return detection.Hypothesis{}, false, nil
	}
	analysisCh, ok := r.channels.Unfiltered(ctx, src, start, end)
	if !ok {
		r.log.Warn("no analysis channel for arrival, dropping hypothesis", "stage", v.stage.Name, "arid", a.ID)
		r.metrics.Skipped.WithLabelValues(metrics.ReasonNoAnalysis).Inc()
		return detection.Hypothesis{}, false, nil
	}
	analysis := detection.AnalysisWaveform{
		Channel: *analysisCh,
		Start:   start,
		End:     end,
		Usage:   filterid.DefaultUsage(src.Beamed()),
	}
	if hasParam {
		if u, ok := filterid.ParseUsage(param.Group); ok {
			analysis.Usage = u
		}
		if def, ok := v.filters[param.Value]; ok {
			analysis.Filter = &def
		}
	}
	r.memo(ctx, ch.Name, src)

	amp := r.amplitude(ctx, v, a, src, &c.inputs)

	key := detection.ArrivalKey(v.stage.Account, a.ID)
	if c.assoc != nil {
		key = detection.AssocKey(v.stage.Account, c.assoc.Key)
	}
	detID, err := r.identity.DetectionID(ctx, a.ID)
	if err != nil {
		return detection.Hypothesis{}, false, err
	}
	id, err := r.hypothesisID(ctx, detID, key)
	if err != nil {
		return detection.Hypothesis{}, false, err
	}
	var parentID *detection.HypothesisID
	if c.parent != nil {
		pid, err := r.hypothesisID(ctx, detID, *c.parent)
		if err != nil {
			return detection.Hypothesis{}, false, err
		}
		parentID = &pid
	}

	h, ok := r.converter.Convert(detection.Bundle{
		Stage:     v.stage.Name,
		ID:        id,
		Key:       key,
		Parent:    parentID,
		ParentKey: c.parent,
		Arrival:   a,
		Assoc:     c.assoc,
		Waveform:  src,
		Channel:   *ch,
		Analysis:  analysis,
		Amplitude: amp,
	})
	if !ok {
		r.metrics.Skipped.WithLabelValues(metrics.ReasonRejected).Inc()
		return detection.Hypothesis{}, false, nil
	}

	r.metrics.HypothesesBuilt.WithLabelValues(v.stage.Name, string(key.Source)).Inc()
	if c.rule != nil {
		r.metrics.ParentRules.WithLabelValues(c.rule.String()).Inc()
	}
	c.inputs.Beamed = src.Beamed()
	c.inputs.Wfid = src.Wfdisc.ID
	c.inputs.Channel = ch.Name
	c.inputs.FilterUsage = string(analysis.Usage)
	r.record(ctx, v, h, c)
	return h, true, nil
}

// amplitude selects the arrival's A5/2 measurement and resolves its
// channel, filtered by the amplitude's own filter when one is recorded.
func (r *Resolver) amplitude(ctx context.Context, v *view, a records.Arrival, src waveform.SourcedWaveform, inputs *provenance.DecisionInputs) *detection.AmplitudeMeasurement {
	sel := amplitude.Prioritize(a, v.amplitudes[a.ID])
	if !sel.Found {
		return nil
	}
	if sel.Fallback {
		r.log.Debug("amplitude tie-break fell back to highest ampid", "arid", a.ID, "ampid", sel.Amplitude.ID)
	}
	inputs.Ampid, inputs.AmpFallback = sel.Amplitude.ID, sel.Fallback

	start, end := src.Wfdisc.Time, src.Wfdisc.EndTime
	m := &detection.AmplitudeMeasurement{Record: sel.Amplitude}

	param, hasParam := filterid.SelectForAmplitude(v.ampParams, sel.Amplitude.ID)
	var filterID *int64
	if hasParam {
		filterID = &param.Value
	}
	ch, ok := r.channels.Resolve(ctx, src, start, end, filterID)
	if !ok {
		return m
	}
	m.Channel = ch
	r.memo(ctx, ch.Name, src)

	if unfiltered, ok := r.channels.Unfiltered(ctx, src, start, end); ok {
		analysis := &detection.AnalysisWaveform{Channel: *unfiltered, Start: start, End: end}
		if hasParam {
			if def, ok := v.filters[param.Value]; ok {
				analysis.Filter = &def
				analysis.Usage = filterid.UsageMeasure
				if u, ok := filterid.ParseUsage(param.Group); ok {
					analysis.Usage = u
				}
			}
		}
		m.Analysis = analysis
	}
	return m
}

func (r *Resolver) memo(ctx context.Context, channel string, src waveform.SourcedWaveform) {
	r.cache.Put(ctx, waveform.Descriptor{
		ChannelName:  channel,
		Start:        src.Wfdisc.Time,
		End:          src.Wfdisc.EndTime,
		CreationTime: src.Wfdisc.Time,
	}, []int64{src.Wfdisc.ID})
}

func (r *Resolver) record(ctx context.Context, v *view, h detection.Hypothesis, c candidate) {
	if r.decisions == nil {
		return
	}
	entry := provenance.Entry{
		HypothesisID: h.ID.ID.String(),
		DetectionID:  h.ID.DetectionID.String(),
		Stage:        v.stage.Name,
		Account:      v.stage.Account,
		Arid:         h.Key.Arid,
		Orid:         h.Key.Orid,
		Source:       string(h.Key.Source),
		Decision:     c.decision,
		InputsJSON:   provenance.EncodeInputs(c.inputs),
	}
	if h.Parent != nil {
		entry.ParentID = h.Parent.ID.String()
	}
	if c.rule != nil {
		entry.ParentRule = c.rule.String()
	}
	if err := r.decisions.Record(ctx, entry); err != nil {
		r.log.Warn("lineage log write failed", "hypothesis", h.Key.String(), "error", err)
	}
}

// #endregion build
