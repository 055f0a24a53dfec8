package lineage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/lineage-bridge/internal/detection"
	"github.com/danielpatrickdp/lineage-bridge/internal/provenance"
	"github.com/danielpatrickdp/lineage-bridge/internal/records"
	"github.com/danielpatrickdp/lineage-bridge/internal/stage"
	"github.com/danielpatrickdp/lineage-bridge/internal/waveform"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// #region stage-fake
// memStage is one stage's tables held in memory.
type memStage struct {
	arrivals      []records.Arrival
	assocs        []records.Assoc
	amps          []records.Amplitude
	arrivalParams []records.FilterParam
	ampParams     []records.FilterParam
	calls         int
}

func idSet(ids []int64) map[int64]bool {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func (s *memStage) FindArrivalsByIDs(_ context.Context, arids []int64) ([]records.Arrival, error) {
	s.calls++
	want := idSet(arids)
	var out []records.Arrival
	for _, a := range s.arrivals {
		if want[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStage) FindArrivalsByStationsAndTime(_ context.Context, stations []string, excluded []int64, start, end time.Time, lead, lag time.Duration) ([]records.Arrival, error) {
	s.calls++
	skip := idSet(excluded)
	var out []records.Arrival
	for _, a := range s.arrivals {
		for _, sta := range stations {
			if a.Station == sta && !skip[a.ID] && !a.Time.Before(start.Add(-lead)) && !a.Time.After(end.Add(lag)) {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (s *memStage) FindAssocsByArids(_ context.Context, arids []int64) ([]records.Assoc, error) {
	s.calls++
	want := idSet(arids)
	var out []records.Assoc
	for _, a := range s.assocs {
		if want[a.Key.Arid] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStage) FindAssocsByKeys(_ context.Context, keys []records.AssocKey) ([]records.Assoc, error) {
	s.calls++
	var out []records.Assoc
	for _, a := range s.assocs {
		for _, k := range keys {
			if a.Key == k {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (s *memStage) FindAmplitudesByArids(_ context.Context, arids []int64) ([]records.Amplitude, error) {
	s.calls++
	want := idSet(arids)
	var out []records.Amplitude
	for _, a := range s.amps {
		if want[a.Arid] {
			out = append(out, a)
		}
	}
	return out, nil
}

type memParams struct {
	s      *memStage
	amp    bool
	failed error
}

func (p *memParams) FindFilterParamsByIDs(_ context.Context, ids []int64) ([]records.FilterParam, error) {
	p.s.calls++
	if p.failed != nil {
		return nil, p.failed
	}
	src := p.s.arrivalParams
	if p.amp {
		src = p.s.ampParams
	}
	want := idSet(ids)
	var out []records.FilterParam
	for _, fp := range src {
		if want[fp.AnchorID] {
			out = append(out, fp)
		}
	}
	return out, nil
}

// #endregion stage-fake

// #region catalog-fake
type memCatalog struct {
	mu      sync.Mutex
	wfdiscs []records.Wfdisc
	tags    []records.WfTag
	sites   []records.Site
	defs    map[int64]records.FilterDefinition
	calls   int
}

func (c *memCatalog) hit() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *memCatalog) FindWfdiscsByIDs(_ context.Context, ids []int64) ([]records.Wfdisc, error) {
	c.hit()
	want := idSet(ids)
	var out []records.Wfdisc
	for _, w := range c.wfdiscs {
		if want[w.ID] {
			out = append(out, w)
		}
	}
	return out, nil
}

func (c *memCatalog) FindWfdiscsEndingAfter(_ context.Context, keys []records.StationChannelTime) ([]records.Wfdisc, error) {
	c.hit()
	var out []records.Wfdisc
	for _, w := range c.wfdiscs {
		for _, k := range keys {
			if w.Station == k.Station && w.Channel == k.Channel && !w.EndTime.Before(k.Time) {
				out = append(out, w)
				break
			}
		}
	}
	return out, nil
}

func (c *memCatalog) FindWfTagsByTagIDs(_ context.Context, ids []int64) ([]records.WfTag, error) {
	c.hit()
	want := idSet(ids)
	var out []records.WfTag
	for _, t := range c.tags {
		if want[t.TagID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *memCatalog) FindSitesByReferenceStations(_ context.Context, refs []string, _, _ time.Time) ([]records.Site, error) {
	c.hit()
	var out []records.Site
	for _, s := range c.sites {
		for _, r := range refs {
			if s.ReferenceStation == r {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (c *memCatalog) LoadFilterDefinitions(_ context.Context, ids []int64) (map[int64]records.FilterDefinition, error) {
	c.hit()
	out := make(map[int64]records.FilterDefinition)
	for _, id := range ids {
		if d, ok := c.defs[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

// #endregion catalog-fake

// #region identity-fake
// memIdentity is a get-or-create registry held in maps.
type memIdentity struct {
	mu         sync.Mutex
	detections map[int64]uuid.UUID
	hyps       map[detection.HypothesisKey]uuid.UUID
	reverse    map[uuid.UUID]detection.HypothesisKey
	calls      int
}

func newMemIdentity() *memIdentity {
	return &memIdentity{
		detections: make(map[int64]uuid.UUID),
		hyps:       make(map[detection.HypothesisKey]uuid.UUID),
		reverse:    make(map[uuid.UUID]detection.HypothesisKey),
	}
}

func (m *memIdentity) DetectionID(_ context.Context, arid int64) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	id, ok := m.detections[arid]
	if !ok {
		id = uuid.New()
		m.detections[arid] = id
	}
	return id, nil
}

func (m *memIdentity) AridForDetection(_ context.Context, id uuid.UUID) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for arid, d := range m.detections {
		if d == id {
			return arid, true, nil
		}
	}
	return 0, false, nil
}

func (m *memIdentity) hypothesis(k detection.HypothesisKey) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	id, ok := m.hyps[k]
	if !ok {
		id = uuid.New()
		m.hyps[k] = id
		m.reverse[id] = k
	}
	return id
}

func (m *memIdentity) ArrivalHypothesisID(_ context.Context, account string, arid int64) (uuid.UUID, error) {
	return m.hypothesis(detection.ArrivalKey(account, arid)), nil
}

func (m *memIdentity) AssocHypothesisID(_ context.Context, account string, arid, orid int64) (uuid.UUID, error) {
	return m.hypothesis(detection.AssocKey(account, records.AssocKey{Arid: arid, Orid: orid})), nil
}

func (m *memIdentity) ArrivalComponents(_ context.Context, id uuid.UUID) (string, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	k, ok := m.reverse[id]
	if !ok || k.Source != detection.SourceArrival {
		return "", 0, false, nil
	}
	return k.Account, k.Arid, true, nil
}

func (m *memIdentity) AssocComponents(_ context.Context, id uuid.UUID) (string, int64, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	k, ok := m.reverse[id]
	if !ok || k.Source != detection.SourceAssoc {
		return "", 0, 0, false, nil
	}
	return k.Account, k.Arid, k.Orid, true, nil
}

// #endregion identity-fake

// #region misc-fakes
type countingCache struct {
	puts map[string][]int64
}

func (c *countingCache) Put(_ context.Context, d waveform.Descriptor, wfids []int64) {
	c.puts[d.Key()] = wfids
}

type memLog struct {
	entries []provenance.Entry
}

func (l *memLog) Record(_ context.Context, e provenance.Entry) error {
	l.entries = append(l.entries, e)
	return nil
}

type rejectArid struct {
	inner BundleConverter
	arid  int64
}

func (r rejectArid) Convert(b detection.Bundle) (detection.Hypothesis, bool) {
	if b.Arrival.ID == r.arid {
		return detection.Hypothesis{}, false
	}
	return r.inner.Convert(b)
}

// #endregion misc-fakes

// #region world
// world is a resolver over n in-memory stages named AL1..ALn with
// accounts al1..aln, and one ASAR/SHZ waveform file covering the day.
type world struct {
	stages   []*memStage
	catalog  *memCatalog
	ids      *memIdentity
	cache    *countingCache
	log      *memLog
	registry *stage.Registry
	res      *Resolver
}

func newWorld(t *testing.T, n int) *world {
	t.Helper()
	defs := make([]stage.Stage, n)
	for i := range defs {
		defs[i] = stage.Stage{Name: fmt.Sprintf("AL%d", i+1), Account: fmt.Sprintf("al%d", i+1)}
	}
	reg, err := stage.NewRegistry(defs)
	require.NoError(t, err)

	w := &world{
		catalog: &memCatalog{
			wfdiscs: []records.Wfdisc{{ID: 500, Station: "ASAR", Channel: "SHZ", Time: day, EndTime: day.Add(24 * time.Hour), SampleRate: 40}},
			sites:   []records.Site{{Station: "ASAR", ReferenceStation: "ASAR", OnDate: day.AddDate(-1, 0, 0)}},
			defs:    map[int64]records.FilterDefinition{},
		},
		ids:      newMemIdentity(),
		cache:    &countingCache{puts: map[string][]int64{}},
		log:      &memLog{},
		registry: reg,
	}
	for _, d := range defs {
		s := &memStage{}
		w.stages = append(w.stages, s)
		require.NoError(t, reg.Register(d.Name, stage.KindArrival, records.ArrivalStore(s)))
		require.NoError(t, reg.Register(d.Name, stage.KindAssoc, records.AssocStore(s)))
		require.NoError(t, reg.Register(d.Name, stage.KindAmplitude, records.AmplitudeStore(s)))
		require.NoError(t, reg.Register(d.Name, stage.KindArrivalFilter, records.FilterParamStore(&memParams{s: s})))
		require.NoError(t, reg.Register(d.Name, stage.KindAmplitudeFilter, records.FilterParamStore(&memParams{s: s, amp: true})))
	}
	w.res = w.resolver(t, detection.NewHypothesisConverter(nil))
	return w
}

func (w *world) resolver(t *testing.T, conv BundleConverter) *Resolver {
	t.Helper()
	res, err := NewResolver(Deps{
		Registry:  w.registry,
		Sites:     w.catalog,
		Tags:      w.catalog,
		Wfdiscs:   w.catalog,
		Filters:   w.catalog,
		Channels:  waveform.NewCatalogBuilder(w.catalog),
		Identity:  w.ids,
		Converter: conv,
		Cache:     w.cache,
		Log:       w.log,
	})
	require.NoError(t, err)
	return res
}

func (w *world) storeCalls() int {
	n := w.catalog.calls
	for _, s := range w.stages {
		n += s.calls
	}
	return n
}

func onset(arid int64, phase string) records.Arrival {
	return records.Arrival{ID: arid, Station: "ASAR", Channel: "SHZ", Time: day.Add(time.Duration(arid) * time.Minute), Phase: phase, Amplitude: 1, Period: 1}
}

func assoc(arid, orid int64, phase string) records.Assoc {
	return records.Assoc{Key: records.AssocKey{Arid: arid, Orid: orid}, Phase: phase}
}

func (w *world) detectionID(t *testing.T, arid int64) uuid.UUID {
	t.Helper()
	id, err := w.ids.DetectionID(context.Background(), arid)
	require.NoError(t, err)
	return id
}

func (w *world) key(id uuid.UUID) detection.HypothesisKey {
	w.ids.mu.Lock()
	defer w.ids.mu.Unlock()
	return w.ids.reverse[id]
}

// #endregion world
