package records

import (
	"context"
	"time"
)

// Stores return an empty result, never an error, for empty input.

// ArrivalStore reads one stage's arrival table.
type ArrivalStore interface {
	FindArrivalsByIDs(ctx context.Context, arids []int64) ([]Arrival, error)
	FindArrivalsByStationsAndTime(ctx context.Context, stations []string, excluded []int64, start, end time.Time, lead, lag time.Duration) ([]Arrival, error)
}

// AssocStore reads one stage's association table.
type AssocStore interface {
	FindAssocsByArids(ctx context.Context, arids []int64) ([]Assoc, error)
	FindAssocsByKeys(ctx context.Context, keys []AssocKey) ([]Assoc, error)
}

// AmplitudeStore reads one stage's amplitude table.
type AmplitudeStore interface {
	FindAmplitudesByArids(ctx context.Context, arids []int64) ([]Amplitude, error)
}

// FilterParamStore reads FILTERID rows anchored on arids or ampids.
type FilterParamStore interface {
	FindFilterParamsByIDs(ctx context.Context, ids []int64) ([]FilterParam, error)
}

// WfTagStore looks up derived-waveform tags by the tagged record id.
type WfTagStore interface {
	FindWfTagsByTagIDs(ctx context.Context, tagIDs []int64) ([]WfTag, error)
}

// WfdiscStore reads the waveform-file catalog.
type WfdiscStore interface {
	FindWfdiscsByIDs(ctx context.Context, wfids []int64) ([]Wfdisc, error)
	// FindWfdiscsEndingAfter returns, per key, every file for the key's
	// station and channel whose end time is not before the key time.
	FindWfdiscsEndingAfter(ctx context.Context, keys []StationChannelTime) ([]Wfdisc, error)
}

// SiteStore resolves reference stations to their station codes.
type SiteStore interface {
	FindSitesByReferenceStations(ctx context.Context, refs []string, start, end time.Time) ([]Site, error)
}

// FilterDefinitionStore loads filter definitions; unknown ids are absent.
type FilterDefinitionStore interface {
	LoadFilterDefinitions(ctx context.Context, ids []int64) (map[int64]FilterDefinition, error)
}
