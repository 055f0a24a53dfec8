// Package waveform finds the waveform file behind each arrival and turns it
// into raw, beamed or filtered channel references.
package waveform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/danielpatrickdp/lineage-bridge/internal/records"
)

// #region sourced-waveform
// SourcedWaveform is the waveform file backing an arrival. Tag is set when
// the file was derived for the arrival (a beam) rather than matched by
// station, channel and time.
type SourcedWaveform struct {
	Wfdisc records.Wfdisc
	Tag    *records.WfTag
}

// Beamed reports whether the waveform carries derived-channel provenance.
func (s SourcedWaveform) Beamed() bool {
	return s.Tag != nil
}

// #endregion sourced-waveform

// #region resolver
// SourceResolver maps arrivals to their waveform files.
type SourceResolver struct {
	tags    records.WfTagStore
	wfdiscs records.WfdiscStore
	log     *slog.Logger
}

// NewSourceResolver creates a resolver over the tag and wfdisc catalogs.
func NewSourceResolver(tags records.WfTagStore, wfdiscs records.WfdiscStore, logger *slog.Logger) *SourceResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceResolver{tags: tags, wfdiscs: wfdiscs, log: logger}
}

// Resolve returns the sourced waveform of every arrival it could resolve.
// Tagged arrivals resolve through the tagged file; the rest are matched on
// station, channel and onset time. Unresolved arrivals are absent.
func (r *SourceResolver) Resolve(ctx context.Context, arrivals []records.Arrival) (map[int64]SourcedWaveform, error) {
	out := make(map[int64]SourcedWaveform, len(arrivals))
	if len(arrivals) == 0 {
		return out, nil
	}

	arids := make([]int64, 0, len(arrivals))
	for _, a := range arrivals {
		arids = append(arids, a.ID)
	}
	if err := r.resolveTagged(ctx, arids, out); err != nil {
		return nil, err
	}

	var untagged []records.Arrival
	for _, a := range arrivals {
		if _, ok := out[a.ID]; !ok {
			untagged = append(untagged, a)
		}
	}
	if err := r.resolveRaw(ctx, untagged, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SourceResolver) resolveTagged(ctx context.Context, arids []int64, out map[int64]SourcedWaveform) error {
	tags, err := r.tags.FindWfTagsByTagIDs(ctx, arids)
	if err != nil {
		return fmt.Errorf("find wftags: %w", err)
	}
	if len(tags) == 0 {
		return nil
	}

	// one tag per arrival, lowest wfid first
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].TagID != tags[j].TagID {
			return tags[i].TagID < tags[j].TagID
		}
		return tags[i].WfID < tags[j].WfID
	})
	byArid := make(map[int64]records.WfTag, len(tags))
	wfids := make([]int64, 0, len(tags))
	for _, t := range tags {
		if _, seen := byArid[t.TagID]; seen {
			continue
		}
		byArid[t.TagID] = t
		wfids = append(wfids, t.WfID)
	}

	files, err := r.wfdiscs.FindWfdiscsByIDs(ctx, wfids)
	if err != nil {
		return fmt.Errorf("find tagged wfdiscs: %w", err)
	}
	byWfid := make(map[int64]records.Wfdisc, len(files))
	for _, f := range files {
		byWfid[f.ID] = f
	}
	for arid, t := range byArid {
		f, ok := byWfid[t.WfID]
		if !ok {
			r.log.Debug("tagged wfdisc missing", "arid", arid, "wfid", t.WfID)
			continue
		}
		tag := t
		out[arid] = SourcedWaveform{Wfdisc: f, Tag: &tag}
	}
	return nil
}

func (r *SourceResolver) resolveRaw(ctx context.Context, arrivals []records.Arrival, out map[int64]SourcedWaveform) error {
	if len(arrivals) == 0 {
		return nil
	}
	keys := make([]records.StationChannelTime, 0, len(arrivals))
	for _, a := range arrivals {
		keys = append(keys, a.Key())
	}
	files, err := r.wfdiscs.FindWfdiscsEndingAfter(ctx, keys)
	if err != nil {
		return fmt.Errorf("find raw wfdiscs: %w", err)
	}

	type staChan struct{ sta, cha string }
	byStaChan := make(map[staChan][]records.Wfdisc)
	for _, f := range files {
		k := staChan{f.Station, f.Channel}
		byStaChan[k] = append(byStaChan[k], f)
	}
	for _, a := range arrivals {
		f, ok := SelectWfdisc(byStaChan[staChan{a.Station, a.Channel}], a.Time)
		if !ok {
			continue
		}
		out[a.ID] = SourcedWaveform{Wfdisc: f}
	}
	return nil
}

// #endregion resolver

// #region select
// SelectWfdisc picks the file whose window contains t, else the earliest
// file starting after t. Ties go to the earlier start, then the lower wfid.
func SelectWfdisc(files []records.Wfdisc, t time.Time) (records.Wfdisc, bool) {
	var containing, after *records.Wfdisc
	for i := range files {
		f := &files[i]
		switch {
		case f.Contains(t):
			if containing == nil || earlier(*f, *containing) {
				containing = f
			}
		case f.Time.After(t):
			if after == nil || earlier(*f, *after) {
				after = f
			}
		}
	}
	if containing != nil {
		return *containing, true
	}
	if after != nil {
		return *after, true
	}
	return records.Wfdisc{}, false
}

func earlier(a, b records.Wfdisc) bool {
	if !a.Time.Equal(b.Time) {
		return a.Time.Before(b.Time)
	}
	return a.ID < b.ID
}

// #endregion select
