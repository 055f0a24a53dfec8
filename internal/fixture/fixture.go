// Package fixture seeds stage and catalog databases from a YAML document.
package fixture

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/lineage-bridge/internal/records"
	"github.com/danielpatrickdp/lineage-bridge/internal/sqlstore"
)

// #region document
// Fixture is a seed document: per-stage tables keyed by stage name, plus
// the shared catalog.
type Fixture struct {
	Stages  map[string]StageRows `yaml:"stages"`
	Catalog CatalogRows          `yaml:"catalog"`
}

type StageRows struct {
	Arrivals         []Arrival     `yaml:"arrivals"`
	Assocs           []Assoc       `yaml:"assocs"`
	Amplitudes       []Amplitude   `yaml:"amplitudes"`
	ArrivalFilters   []FilterParam `yaml:"arrival_filters"`
	AmplitudeFilters []FilterParam `yaml:"amplitude_filters"`
}

type CatalogRows struct {
	Wfdiscs []Wfdisc           `yaml:"wfdiscs"`
	WfTags  []WfTag            `yaml:"wftags"`
	Sites   []Site             `yaml:"sites"`
	Filters []FilterDefinition `yaml:"filters"`
}

type Arrival struct {
	Arid      int64     `yaml:"arid"`
	Station   string    `yaml:"sta"`
	Channel   string    `yaml:"chan"`
	Time      time.Time `yaml:"time"`
	Phase     string    `yaml:"iphase"`
	Amplitude float64   `yaml:"amp"`
	Period    float64   `yaml:"per"`
}

type Assoc struct {
	Arid     int64   `yaml:"arid"`
	Orid     int64   `yaml:"orid"`
	Phase    string  `yaml:"phase"`
	Delta    float64 `yaml:"delta"`
	Residual float64 `yaml:"timeres"`
}

type Amplitude struct {
	Ampid     int64     `yaml:"ampid"`
	Arid      int64     `yaml:"arid"`
	Type      string    `yaml:"amptype"`
	Amplitude float64   `yaml:"amp"`
	Period    float64   `yaml:"per"`
	Time      time.Time `yaml:"amptime"`
}

type FilterParam struct {
	ID       int64     `yaml:"id"`
	Group    string    `yaml:"group"`
	FilterID int64     `yaml:"filterid"`
	LoadedAt time.Time `yaml:"lddate"`
}

type Wfdisc struct {
	Wfid       int64     `yaml:"wfid"`
	Station    string    `yaml:"sta"`
	Channel    string    `yaml:"chan"`
	Time       time.Time `yaml:"time"`
	EndTime    time.Time `yaml:"endtime"`
	SampleRate float64   `yaml:"samprate"`
	Dir        string    `yaml:"dir"`
	File       string    `yaml:"dfile"`
}

type WfTag struct {
	TagName string `yaml:"tagname"`
	TagID   int64  `yaml:"tagid"`
	Wfid    int64  `yaml:"wfid"`
}

type Site struct {
	Station          string    `yaml:"sta"`
	ReferenceStation string    `yaml:"refsta"`
	OnDate           time.Time `yaml:"ondate"`
	OffDate          time.Time `yaml:"offdate"`
}

type FilterDefinition struct {
	ID          int64   `yaml:"filterid"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Causal      bool    `yaml:"causal"`
	LowHz       float64 `yaml:"low"`
	HighHz      float64 `yaml:"high"`
	Order       int     `yaml:"order"`
}

// #endregion document

// #region load
// Load reads and decodes the fixture at path.
func Load(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a fixture document.
func Parse(raw []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &fx, nil
}

// #endregion load

// #region apply
// Counts reports how many rows Apply wrote.
type Counts struct {
	Stage   int
	Catalog int
}

// Apply writes the fixture into the given stores. Every stage named in the
// fixture must have a store.
func Apply(ctx context.Context, fx *Fixture, stages map[string]*sqlstore.StageStore, catalog *sqlstore.CatalogStore) (Counts, error) {
	var n Counts
	names := make([]string, 0, len(fx.Stages))
	for name := range fx.Stages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st, ok := stages[name]
		if !ok {
			return n, fmt.Errorf("fixture stage %q is not configured", name)
		}
		written, err := applyStage(ctx, st, fx.Stages[name])
		n.Stage += written
		if err != nil {
			return n, fmt.Errorf("seed stage %s: %w", name, err)
		}
	}
	written, err := applyCatalog(ctx, catalog, fx.Catalog)
	n.Catalog = written
	if err != nil {
		return n, fmt.Errorf("seed catalog: %w", err)
	}
	return n, nil
}

func applyStage(ctx context.Context, st *sqlstore.StageStore, rows StageRows) (int, error) {
	n := 0
	for _, a := range rows.Arrivals {
		if err := st.InsertArrival(ctx, records.Arrival{
			ID: a.Arid, Station: a.Station, Channel: a.Channel, Time: a.Time,
			Phase: a.Phase, Amplitude: a.Amplitude, Period: a.Period,
		}); err != nil {
			return n, err
		}
		n++
	}
	for _, a := range rows.Assocs {
		if err := st.InsertAssoc(ctx, records.Assoc{
			Key:   records.AssocKey{Arid: a.Arid, Orid: a.Orid},
			Phase: a.Phase, Delta: a.Delta, Residual: a.Residual,
		}); err != nil {
			return n, err
		}
		n++
	}
	for _, a := range rows.Amplitudes {
		if err := st.InsertAmplitude(ctx, records.Amplitude{
			ID: a.Ampid, Arid: a.Arid, Type: a.Type,
			Amplitude: a.Amplitude, Period: a.Period, Time: a.Time,
		}); err != nil {
			return n, err
		}
		n++
	}
	for _, set := range []struct {
		table *sqlstore.FilterParamTable
		rows  []FilterParam
	}{
		{st.ArrivalFilterParams(), rows.ArrivalFilters},
		{st.AmplitudeFilterParams(), rows.AmplitudeFilters},
	} {
		for _, p := range set.rows {
			if err := set.table.Insert(ctx, records.FilterParam{
				AnchorID: p.ID, Group: p.Group, Value: p.FilterID, LoadedAt: p.LoadedAt,
			}); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func applyCatalog(ctx context.Context, c *sqlstore.CatalogStore, rows CatalogRows) (int, error) {
	n := 0
	for _, w := range rows.Wfdiscs {
		if err := c.InsertWfdisc(ctx, records.Wfdisc{
			ID: w.Wfid, Station: w.Station, Channel: w.Channel, Time: w.Time, EndTime: w.EndTime,
			SampleRate: w.SampleRate, Dir: w.Dir, File: w.File,
		}); err != nil {
			return n, err
		}
		n++
	}
	for _, t := range rows.WfTags {
		if err := c.InsertWfTag(ctx, records.WfTag{TagName: t.TagName, TagID: t.TagID, WfID: t.Wfid}); err != nil {
			return n, err
		}
		n++
	}
	for _, s := range rows.Sites {
		if err := c.InsertSite(ctx, records.Site{
			Station: s.Station, ReferenceStation: s.ReferenceStation, OnDate: s.OnDate, OffDate: s.OffDate,
		}); err != nil {
			return n, err
		}
		n++
	}
	for _, f := range rows.Filters {
		if err := c.InsertFilterDefinition(ctx, records.FilterDefinition{
			ID: f.ID, Name: f.Name, Description: f.Description, Causal: f.Causal,
			LowHz: f.LowHz, HighHz: f.HighHz, Order: f.Order,
		}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// #endregion apply
