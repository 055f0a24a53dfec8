package records

import (
	"fmt"
	"time"
)

// #region arrival
// Arrival is a detected signal onset as stored by one review stage.
type Arrival struct {
	ID        int64
	Station   string
	Channel   string
	Time      time.Time
	Phase     string
	Amplitude float64
	Period    float64
}

// Key returns the station/channel/time triple used for waveform matching.
func (a Arrival) Key() StationChannelTime {
	return StationChannelTime{Station: a.Station, Channel: a.Channel, Time: a.Time}
}

// #endregion arrival

// #region assoc
// AssocKey identifies an association of an arrival with an event origin.
type AssocKey struct {
	Arid int64
	Orid int64
}

func (k AssocKey) String() string {
	return fmt.Sprintf("%d/%d", k.Arid, k.Orid)
}

// Assoc links an arrival to an origin within one stage.
type Assoc struct {
	Key      AssocKey
	Phase    string
	Delta    float64
	Residual float64
}

// #endregion assoc

// #region amplitude
// Amplitude is a measured amplitude/period pair of a given type.
type Amplitude struct {
	ID        int64
	Arid      int64
	Type      string
	Amplitude float64
	Period    float64
	Time      time.Time
}

// #endregion amplitude

// #region filter-param
// FilterParam is one FILTERID parameter row of the arrival or amplitude
// dynamic-parameter tables. AnchorID is the arid or the ampid.
type FilterParam struct {
	AnchorID int64
	Group    string
	Value    int64
	LoadedAt time.Time
}

// FilterDefinition describes a filter that can be applied to a channel.
type FilterDefinition struct {
	ID          int64
	Name        string
	Description string
	Causal      bool
	LowHz       float64
	HighHz      float64
	Order       int
}

// #endregion filter-param

// #region waveform
// Wfdisc is one waveform-file catalog entry.
type Wfdisc struct {
	ID         int64
	Station    string
	Channel    string
	Time       time.Time
	EndTime    time.Time
	SampleRate float64
	Dir        string
	File       string
}

// Contains reports whether t falls inside the file's validity window.
func (w Wfdisc) Contains(t time.Time) bool {
	return !t.Before(w.Time) && !t.After(w.EndTime)
}

// WfTag ties a derived waveform file to the record it was made for.
type WfTag struct {
	TagName string
	TagID   int64
	WfID    int64
}

func (t WfTag) String() string {
	return fmt.Sprintf("%s:%d->%d", t.TagName, t.TagID, t.WfID)
}

// StationChannelTime is the lookup key for raw waveform matching.
type StationChannelTime struct {
	Station string
	Channel string
	Time    time.Time
}

// Site maps a station code to the reference station it belongs to.
type Site struct {
	Station          string
	ReferenceStation string
	OnDate           time.Time
	OffDate          time.Time
}

// #endregion waveform
