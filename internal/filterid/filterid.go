// Package filterid picks the filter parameter a channel should be built
// with, out of the competing FILTERID rows recorded for an arrival or an
// amplitude.
package filterid

import (
	"strings"

	"github.com/danielpatrickdp/lineage-bridge/internal/records"
)

// Usage is the purpose a filter was recorded for.
type Usage string

const (
	UsageFK      Usage = "FK"
	UsageOnset   Usage = "ONSET"
	UsageDetect  Usage = "DETECT"
	UsageMeasure Usage = "MEASURE"
)

// arrivalPriority orders the groups considered for arrival-anchored lookups.
var arrivalPriority = []Usage{UsageFK, UsageOnset, UsageDetect}

// ParseUsage maps a stored group name onto a Usage.
func ParseUsage(group string) (Usage, bool) {
	switch u := Usage(strings.ToUpper(strings.TrimSpace(group))); u {
	case UsageFK, UsageOnset, UsageDetect, UsageMeasure:
		return u, true
	default:
		return "", false
	}
}

// DefaultUsage is the usage implied when no filter row resolves: beams are
// FK products, everything else is an onset waveform.
func DefaultUsage(beamed bool) Usage {
	if beamed {
		return UsageFK
	}
	return UsageOnset
}

// latestByGroup keeps, per recognized arrival group, the row with the latest
// load date for the anchor id.
func latestByGroup(params []records.FilterParam, arid int64) map[Usage]records.FilterParam {
	latest := make(map[Usage]records.FilterParam)
	for _, p := range params {
		if p.AnchorID != arid {
			continue
		}
		u, ok := ParseUsage(p.Group)
		if !ok || u == UsageMeasure {
			continue
		}
		if cur, seen := latest[u]; !seen || p.LoadedAt.After(cur.LoadedAt) {
			latest[u] = p
		}
	}
	return latest
}

// SelectForArrival returns the row for arid from the highest-priority group
// present, FK first, then ONSET, then DETECT.
func SelectForArrival(params []records.FilterParam, arid int64) (records.FilterParam, bool) {
	latest := latestByGroup(params, arid)
	for _, u := range arrivalPriority {
		if p, ok := latest[u]; ok {
			return p, true
		}
	}
	return records.FilterParam{}, false
}

// UsagesForArrival maps every recognized group present for arid to its
// latest filter id.
func UsagesForArrival(params []records.FilterParam, arid int64) map[Usage]int64 {
	out := make(map[Usage]int64)
	for u, p := range latestByGroup(params, arid) {
		out[u] = p.Value
	}
	return out
}

// SelectForAmplitude returns the latest-loaded row for ampid, whatever its
// group.
func SelectForAmplitude(params []records.FilterParam, ampid int64) (records.FilterParam, bool) {
	var best records.FilterParam
	found := false
	for _, p := range params {
		if p.AnchorID != ampid {
			continue
		}
		if !found || p.LoadedAt.After(best.LoadedAt) {
			best, found = p, true
		}
	}
	return best, found
}
