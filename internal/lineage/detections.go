package lineage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/lineage-bridge/internal/detection"
	"github.com/danielpatrickdp/lineage-bridge/internal/metrics"
	"github.com/danielpatrickdp/lineage-bridge/internal/records"
	"github.com/danielpatrickdp/lineage-bridge/internal/stage"
)

// #region by-id
// FindDetectionsByIDs resolves detections as seen from stageName. Arrivals
// that only exist at the previous stage come back as detections of that
// stage. Unknown detection ids are skipped.
func (r *Resolver) FindDetectionsByIDs(ctx context.Context, detectionIDs []uuid.UUID, stageName string) ([]detection.Detection, error) {
	if len(detectionIDs) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "lineage.FindDetectionsByIDs", trace.WithAttributes(
		attribute.String("lineage.stage", stageName),
		attribute.Int("lineage.ids", len(detectionIDs)),
	))
	defer span.End()
	defer r.metrics.ObserveSince("detections_by_id", time.Now())

	st, err := r.registry.Stage(stageName)
	if err != nil {
		return nil, err
	}
	arids, err := r.aridsFor(ctx, detectionIDs)
	if err != nil {
		return nil, err
	}
	out, err := r.detectionsAt(ctx, st, arids, true)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("lineage.detections", len(out)))
	return out, nil
}

func (r *Resolver) aridsFor(ctx context.Context, detectionIDs []uuid.UUID) ([]int64, error) {
	arids := make([]int64, 0, len(detectionIDs))
	for _, id := range detectionIDs {
		arid, ok, err := r.identity.AridForDetection(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("detection %s: %w", id, err)
		}
		if !ok {
			r.log.Warn("unknown detection id", "detection", id)
			r.metrics.Skipped.WithLabelValues(metrics.ReasonUnknownIdentity).Inc()
			continue
		}
		arids = append(arids, arid)
	}
	return records.Unique(arids), nil
}

// #endregion by-id

// #region by-station
// FindDetectionsByStationsAndTime resolves the detections at stageName whose
// arrivals were recorded at the sites of the given reference stations with
// an onset in [start-lead, end+lag]. Excluded detections are left out.
func (r *Resolver) FindDetectionsByStationsAndTime(ctx context.Context, stations []string, start, end time.Time, stageName string, excluded []uuid.UUID) ([]detection.Detection, error) {
	if len(stations) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "lineage.FindDetectionsByStationsAndTime", trace.WithAttributes(
		attribute.String("lineage.stage", stageName),
		attribute.StringSlice("lineage.stations", stations),
	))
	defer span.End()
	defer r.metrics.ObserveSince("detections_by_station", time.Now())

	st, err := r.registry.Stage(stageName)
	if err != nil {
		return nil, err
	}
	arrivalStore, err := stage.CurrentSource[records.ArrivalStore](r.registry, st.Name, stage.KindArrival)
	if err != nil {
		return nil, err
	}

	sites, err := r.sites.FindSitesByReferenceStations(ctx, stations, start, end)
	if err != nil {
		return nil, fmt.Errorf("find sites: %w", err)
	}
	seen := make(map[string]bool, len(sites))
	codes := make([]string, 0, len(sites))
	for _, s := range sites {
		if !seen[s.Station] {
			seen[s.Station] = true
			codes = append(codes, s.Station)
		}
	}
	if len(codes) == 0 {
		r.log.Debug("no sites for reference stations", "stations", stations)
		return nil, nil
	}

	var excludedArids []int64
	if len(excluded) > 0 {
		if excludedArids, err = r.aridsFor(ctx, excluded); err != nil {
			return nil, err
		}
	}
	arrivals, err := arrivalStore.FindArrivalsByStationsAndTime(ctx, codes, excludedArids, start, end, r.lead, r.lag)
	if err != nil {
		return nil, fmt.Errorf("find %s arrivals by station: %w", st.Name, err)
	}
	if len(arrivals) == 0 {
		return nil, nil
	}
	arids := make([]int64, 0, len(arrivals))
	for _, a := range arrivals {
		arids = append(arids, a.ID)
	}
	return r.detectionsAt(ctx, st, records.Unique(arids), false)
}

// #endregion by-station

// #region assemble
func (r *Resolver) detectionsAt(ctx context.Context, st stage.Stage, arids []int64, withPreviousOnly bool) ([]detection.Detection, error) {
	if len(arids) == 0 {
		return nil, nil
	}
	v, err := r.loadView(ctx, st, arids)
	if err != nil {
		return nil, err
	}

	var out []detection.Detection
	var previousOnly []int64
	for _, arid := range arids {
		a, ok := v.arrivals[arid]
		if !ok {
			if _, prev := v.prevArrivals[arid]; prev {
				previousOnly = append(previousOnly, arid)
			} else {
				r.log.Debug("arrival not found at stage", "stage", st.Name, "arid", arid)
			}
			continue
		}
		d, ok, err := r.detectionFor(ctx, v, a)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}

	if withPreviousOnly && len(previousOnly) > 0 && v.previous != nil {
		earlier, err := r.detectionsAt(ctx, *v.previous, previousOnly, false)
		if err != nil {
			return nil, err
		}
		out = append(out, earlier...)
	}
	return out, nil
}

// detectionFor assembles the detection of a current-stage arrival: the
// previous-stage arrival and association hypotheses it descends from, its
// own arrival hypothesis when the arrival decision calls for one, and one
// hypothesis per current association.
func (r *Resolver) detectionFor(ctx context.Context, v *view, a records.Arrival) (detection.Detection, bool, error) {
	detID, err := r.identity.DetectionID(ctx, a.ID)
	if err != nil {
		return detection.Detection{}, false, err
	}

	var refs []detection.HypothesisID
	var built []detection.Hypothesis
	if _, ok := v.prevArrivals[a.ID]; ok {
		id, err := r.hypothesisID(ctx, detID, detection.ArrivalKey(v.previousAccount(), a.ID))
		if err != nil {
			return detection.Detection{}, false, err
		}
		refs = append(refs, id)
		for _, pa := range v.prevAssocsByArid[a.ID] {
			id, err := r.hypothesisID(ctx, detID, detection.AssocKey(v.previousAccount(), pa.Key))
			if err != nil {
				return detection.Detection{}, false, err
			}
			refs = append(refs, id)
		}
	}

	c, decision := r.arrivalCandidate(v, a)
	switch decision {
	case BuildFromArrival:
		h, ok, err := r.build(ctx, v, c)
		if err != nil {
			return detection.Detection{}, false, err
		}
		if ok {
			refs = append(refs, h.ID)
			built = append(built, h)
		}
	case AssociationsOnly:
	default:
		panic(fmt.Sprintf("lineage: unhandled arrival decision %v", decision))
	}

	for _, as := range v.assocs[a.ID] {
		c, ok := r.assocCandidate(v, as)
		if !ok {
			continue
		}
		h, ok, err := r.build(ctx, v, c)
		if err != nil {
			return detection.Detection{}, false, err
		}
		if ok {
			refs = append(refs, h.ID)
			built = append(built, h)
		}
	}

	if len(refs) == 0 {
		r.log.Warn("no hypotheses for arrival, dropping detection", "stage", v.stage.Name, "arid", a.ID)
		return detection.Detection{}, false, nil
	}
	return detection.AssembleDetection(detID, a.ID, a.Station, v.stage.Name, refs, built), true, nil
}

// #endregion assemble
