// Package lineage decides, stage by stage, which hypotheses a detection
// has and which earlier hypothesis each one supersedes.
package lineage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/danielpatrickdp/lineage-bridge/internal/detection"
	"github.com/danielpatrickdp/lineage-bridge/internal/metrics"
	"github.com/danielpatrickdp/lineage-bridge/internal/provenance"
	"github.com/danielpatrickdp/lineage-bridge/internal/records"
	"github.com/danielpatrickdp/lineage-bridge/internal/stage"
	"github.com/danielpatrickdp/lineage-bridge/internal/waveform"
)

var tracer = otel.Tracer("lineage-bridge/lineage")

// Default widening of the station/time detection query around its window.
const (
	DefaultLead = 500 * time.Millisecond
	DefaultLag  = 300 * time.Millisecond
)

// #region collaborators
// IdentityRegistrar owns the mapping between legacy keys and opaque ids.
type IdentityRegistrar interface {
	DetectionID(ctx context.Context, arid int64) (uuid.UUID, error)
	AridForDetection(ctx context.Context, detectionID uuid.UUID) (int64, bool, error)
	ArrivalHypothesisID(ctx context.Context, account string, arid int64) (uuid.UUID, error)
	AssocHypothesisID(ctx context.Context, account string, arid, orid int64) (uuid.UUID, error)
	ArrivalComponents(ctx context.Context, hypothesisID uuid.UUID) (string, int64, bool, error)
	AssocComponents(ctx context.Context, hypothesisID uuid.UUID) (string, int64, int64, bool, error)
}

// BundleConverter turns a bundle into a hypothesis; false means rejected.
type BundleConverter interface {
	Convert(b detection.Bundle) (detection.Hypothesis, bool)
}

// DecisionLog records emitted hypotheses.
type DecisionLog interface {
	Record(ctx context.Context, entry provenance.Entry) error
}

// #endregion collaborators

// #region resolver
// Deps wires a Resolver. Log, Cache, Metrics and Logger are optional.
type Deps struct {
	Registry  *stage.Registry
	Sites     records.SiteStore
	Tags      records.WfTagStore
	Wfdiscs   records.WfdiscStore
	Filters   records.FilterDefinitionStore
	Channels  waveform.ChannelBuilder
	Identity  IdentityRegistrar
	Converter BundleConverter

	Cache   waveform.IDCache
	Log     DecisionLog
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	Lead time.Duration
	Lag  time.Duration
}

// Resolver resolves detections and hypotheses across the stage sequence.
type Resolver struct {
	registry  *stage.Registry
	sites     records.SiteStore
	filters   records.FilterDefinitionStore
	sources   *waveform.SourceResolver
	channels  *waveform.ChannelResolver
	identity  IdentityRegistrar
	converter BundleConverter
	cache     waveform.IDCache
	decisions DecisionLog
	metrics   *metrics.Metrics
	log       *slog.Logger
	lead, lag time.Duration
}

// NewResolver validates d and builds a Resolver.
func NewResolver(d Deps) (*Resolver, error) {
	switch {
	case d.Registry == nil:
		return nil, errors.New("lineage: registry is required")
	case d.Sites == nil, d.Tags == nil, d.Wfdiscs == nil, d.Filters == nil:
		return nil, errors.New("lineage: catalog stores are required")
	case d.Channels == nil:
		return nil, errors.New("lineage: channel builder is required")
	case d.Identity == nil:
		return nil, errors.New("lineage: identity registrar is required")
	case d.Converter == nil:
		return nil, errors.New("lineage: bundle converter is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cache := d.Cache
	if cache == nil {
		cache = waveform.NoopCache{}
	}
	m := d.Metrics
	if m == nil {
		m = metrics.Discard()
	}
	lead, lag := d.Lead, d.Lag
	if lead == 0 {
		lead = DefaultLead
	}
	if lag == 0 {
		lag = DefaultLag
	}
	return &Resolver{
		registry:  d.Registry,
		sites:     d.Sites,
		filters:   d.Filters,
		sources:   waveform.NewSourceResolver(d.Tags, d.Wfdiscs, logger),
		channels:  waveform.NewChannelResolver(d.Channels, logger),
		identity:  d.Identity,
		converter: d.Converter,
		cache:     cache,
		decisions: d.Log,
		metrics:   m,
		log:       logger,
		lead:      lead,
		lag:       lag,
	}, nil
}

// #endregion resolver

// #region view
// view is everything loaded up front for a set of arids at one stage.
type view struct {
	stage    stage.Stage
	previous *stage.Stage

	arrivals         map[int64]records.Arrival
	assocs           map[int64][]records.Assoc
	amplitudes       map[int64][]records.Amplitude
	prevArrivals     map[int64]records.Arrival
	prevAssocs       map[records.AssocKey]records.Assoc
	prevAssocsByArid map[int64][]records.Assoc

	arrivalParams []records.FilterParam
	ampParams     []records.FilterParam
	filters       map[int64]records.FilterDefinition
	waveforms     map[int64]waveform.SourcedWaveform
}

func (v *view) previousAccount() string {
	if v.previous == nil {
		return ""
	}
	return v.previous.Account
}

func (v *view) counterpart(arid int64) Counterpart {
	c := Counterpart{HasPreviousStage: v.previous != nil}
	if a, ok := v.prevArrivals[arid]; ok {
		c.Arrival = &a
	}
	return c
}

func (r *Resolver) loadView(ctx context.Context, st stage.Stage, arids []int64) (*view, error) {
	arrivalStore, err := stage.CurrentSource[records.ArrivalStore](r.registry, st.Name, stage.KindArrival)
	if err != nil {
		return nil, err
	}
	assocStore, err := stage.CurrentSource[records.AssocStore](r.registry, st.Name, stage.KindAssoc)
	if err != nil {
		return nil, err
	}
	ampStore, err := stage.CurrentSource[records.AmplitudeStore](r.registry, st.Name, stage.KindAmplitude)
	if err != nil {
		return nil, err
	}

	v := &view{
		stage:            st,
		arrivals:         make(map[int64]records.Arrival),
		assocs:           make(map[int64][]records.Assoc),
		amplitudes:       make(map[int64][]records.Amplitude),
		prevArrivals:     make(map[int64]records.Arrival),
		prevAssocs:       make(map[records.AssocKey]records.Assoc),
		prevAssocsByArid: make(map[int64][]records.Assoc),
	}

	arrivals, err := arrivalStore.FindArrivalsByIDs(ctx, arids)
	if err != nil {
		return nil, fmt.Errorf("load %s arrivals: %w", st.Name, err)
	}
	for _, a := range arrivals {
		v.arrivals[a.ID] = a
	}
	assocs, err := assocStore.FindAssocsByArids(ctx, arids)
	if err != nil {
		return nil, fmt.Errorf("load %s assocs: %w", st.Name, err)
	}
	for _, a := range assocs {
		v.assocs[a.Key.Arid] = append(v.assocs[a.Key.Arid], a)
	}
	amps, err := ampStore.FindAmplitudesByArids(ctx, arids)
	if err != nil {
		return nil, fmt.Errorf("load %s amplitudes: %w", st.Name, err)
	}
	ampids := make([]int64, 0, len(amps))
	for _, a := range amps {
		v.amplitudes[a.Arid] = append(v.amplitudes[a.Arid], a)
		ampids = append(ampids, a.ID)
	}

	if store, ok := stage.OptionalSource[records.FilterParamStore](r.registry, st.Name, stage.KindArrivalFilter); ok {
		if v.arrivalParams, err = store.FindFilterParamsByIDs(ctx, arids); err != nil {
			return nil, fmt.Errorf("load %s arrival filter params: %w", st.Name, err)
		}
	}
	if store, ok := stage.OptionalSource[records.FilterParamStore](r.registry, st.Name, stage.KindAmplitudeFilter); ok && len(ampids) > 0 {
		if v.ampParams, err = store.FindFilterParamsByIDs(ctx, ampids); err != nil {
			return nil, fmt.Errorf("load %s amplitude filter params: %w", st.Name, err)
		}
	}

	if prev, ok := r.registry.PreviousStage(st.Name); ok {
		v.previous = &prev
		if store, ok := stage.PreviousSource[records.ArrivalStore](r.registry, st.Name, stage.KindArrival); ok {
			prevArrivals, err := store.FindArrivalsByIDs(ctx, arids)
			if err != nil {
				return nil, fmt.Errorf("load %s arrivals: %w", prev.Name, err)
			}
			for _, a := range prevArrivals {
				v.prevArrivals[a.ID] = a
			}
		}
		if store, ok := stage.PreviousSource[records.AssocStore](r.registry, st.Name, stage.KindAssoc); ok {
			prevAssocs, err := store.FindAssocsByArids(ctx, arids)
			if err != nil {
				return nil, fmt.Errorf("load %s assocs: %w", prev.Name, err)
			}
			for _, a := range prevAssocs {
				v.prevAssocs[a.Key] = a
				v.prevAssocsByArid[a.Key.Arid] = append(v.prevAssocsByArid[a.Key.Arid], a)
			}
		}
	}

	filterIDs := make([]int64, 0, len(v.arrivalParams)+len(v.ampParams))
	for _, p := range v.arrivalParams {
		filterIDs = append(filterIDs, p.Value)
	}
	for _, p := range v.ampParams {
		filterIDs = append(filterIDs, p.Value)
	}
	if len(filterIDs) > 0 {
		if v.filters, err = r.filters.LoadFilterDefinitions(ctx, filterIDs); err != nil {
			return nil, fmt.Errorf("load filter definitions: %w", err)
		}
	}

	current := make([]records.Arrival, 0, len(v.arrivals))
	for _, arid := range arids {
		if a, ok := v.arrivals[arid]; ok {
			current = append(current, a)
		}
	}
	if v.waveforms, err = r.sources.Resolve(ctx, current); err != nil {
		return nil, fmt.Errorf("resolve %s waveforms: %w", st.Name, err)
	}
	return v, nil
}

// #endregion view

// #region identities
func (r *Resolver) hypothesisID(ctx context.Context, detectionID uuid.UUID, key detection.HypothesisKey) (detection.HypothesisID, error) {
	var (
		id  uuid.UUID
		err error
	)
	switch key.Source {
	case detection.SourceArrival:
		id, err = r.identity.ArrivalHypothesisID(ctx, key.Account, key.Arid)
	case detection.SourceAssoc:
		id, err = r.identity.AssocHypothesisID(ctx, key.Account, key.Arid, key.Orid)
	default:
		return detection.HypothesisID{}, fmt.Errorf("hypothesis key %s has no source", key)
	}
	if err != nil {
		return detection.HypothesisID{}, err
	}
	return detection.HypothesisID{DetectionID: detectionID, ID: id}, nil
}

// #endregion identities
