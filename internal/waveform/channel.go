package waveform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/danielpatrickdp/lineage-bridge/internal/records"
)

// ErrMalformedReference is returned by builders for waveform-file references
// a channel cannot be built from.
var ErrMalformedReference = errors.New("malformed waveform reference")

// #region channel
// ChannelKind distinguishes station channels from derived beams.
type ChannelKind string

const (
	KindRaw    ChannelKind = "raw"
	KindBeamed ChannelKind = "beamed"
)

// Channel is a reference to a raw or derived, optionally filtered, channel.
type Channel struct {
	Name        string
	Station     string
	ChannelCode string
	Kind        ChannelKind
	SampleRate  float64
	FilterID    *int64
}

// Filtered reports whether a filter was applied.
func (c Channel) Filtered() bool {
	return c.FilterID != nil
}

// #endregion channel

// #region builder
// ChannelBuilder builds channel references from waveform files. A nil
// channel with a nil error means no channel could be built.
type ChannelBuilder interface {
	Raw(ctx context.Context, files []records.Wfdisc, start, end time.Time) (*Channel, error)
	Beamed(ctx context.Context, files []records.Wfdisc, tagName string, tagID int64, start, end time.Time) (*Channel, error)
	FilteredRaw(ctx context.Context, files []records.Wfdisc, start, end time.Time, filterID int64) (*Channel, error)
	FilteredBeamed(ctx context.Context, files []records.Wfdisc, tagName string, tagID int64, start, end time.Time, filterID int64) (*Channel, error)
}

// CatalogBuilder names channels after the catalog entries they come from.
// Filtered variants require a known filter definition.
type CatalogBuilder struct {
	filters records.FilterDefinitionStore
}

// NewCatalogBuilder creates a builder that checks filter ids against filters.
func NewCatalogBuilder(filters records.FilterDefinitionStore) *CatalogBuilder {
	return &CatalogBuilder{filters: filters}
}

func (b *CatalogBuilder) Raw(_ context.Context, files []records.Wfdisc, start, end time.Time) (*Channel, error) {
	f, err := checkReference(files, start, end)
	if err != nil {
		return nil, err
	}
	return &Channel{
		Name:        f.Station + "." + f.Channel,
		Station:     f.Station,
		ChannelCode: f.Channel,
		Kind:        KindRaw,
		SampleRate:  f.SampleRate,
	}, nil
}

func (b *CatalogBuilder) Beamed(_ context.Context, files []records.Wfdisc, tagName string, tagID int64, start, end time.Time) (*Channel, error) {
	f, err := checkReference(files, start, end)
	if err != nil {
		return nil, err
	}
	if tagName == "" {
		return nil, fmt.Errorf("%w: empty tag name", ErrMalformedReference)
	}
	return &Channel{
		Name:        fmt.Sprintf("%s.beam.%s/%s,%d", f.Station, f.Channel, tagName, tagID),
		Station:     f.Station,
		ChannelCode: f.Channel,
		Kind:        KindBeamed,
		SampleRate:  f.SampleRate,
	}, nil
}

func (b *CatalogBuilder) FilteredRaw(ctx context.Context, files []records.Wfdisc, start, end time.Time, filterID int64) (*Channel, error) {
	ch, err := b.Raw(ctx, files, start, end)
	if err != nil {
		return nil, err
	}
	return b.filter(ctx, ch, filterID)
}

func (b *CatalogBuilder) FilteredBeamed(ctx context.Context, files []records.Wfdisc, tagName string, tagID int64, start, end time.Time, filterID int64) (*Channel, error) {
	ch, err := b.Beamed(ctx, files, tagName, tagID, start, end)
	if err != nil {
		return nil, err
	}
	return b.filter(ctx, ch, filterID)
}

func (b *CatalogBuilder) filter(ctx context.Context, ch *Channel, filterID int64) (*Channel, error) {
	defs, err := b.filters.LoadFilterDefinitions(ctx, []int64{filterID})
	if err != nil {
		return nil, fmt.Errorf("load filter %d: %w", filterID, err)
	}
	if _, ok := defs[filterID]; !ok {
		return nil, nil
	}
	id := filterID
	ch.Name = fmt.Sprintf("%s/filter,%d", ch.Name, filterID)
	ch.FilterID = &id
	return ch, nil
}

func checkReference(files []records.Wfdisc, start, end time.Time) (records.Wfdisc, error) {
	if len(files) == 0 {
		return records.Wfdisc{}, fmt.Errorf("%w: no files", ErrMalformedReference)
	}
	f := files[0]
	switch {
	case strings.TrimSpace(f.Station) == "" || strings.TrimSpace(f.Channel) == "":
		return records.Wfdisc{}, fmt.Errorf("%w: wfid %d has no station or channel", ErrMalformedReference, f.ID)
	case !f.EndTime.After(f.Time):
		return records.Wfdisc{}, fmt.Errorf("%w: wfid %d has an empty window", ErrMalformedReference, f.ID)
	case f.SampleRate <= 0:
		return records.Wfdisc{}, fmt.Errorf("%w: wfid %d has sample rate %g", ErrMalformedReference, f.ID, f.SampleRate)
	case end.Before(start):
		return records.Wfdisc{}, fmt.Errorf("%w: segment ends before it starts", ErrMalformedReference)
	}
	return f, nil
}

// #endregion builder

// #region channel-resolver
// ChannelResolver builds the channel for a sourced waveform. Builder errors
// and filtered misses never escape: the result is simply "no channel".
type ChannelResolver struct {
	builder ChannelBuilder
	log     *slog.Logger
}

// NewChannelResolver wraps builder.
func NewChannelResolver(builder ChannelBuilder, logger *slog.Logger) *ChannelResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelResolver{builder: builder, log: logger}
}

// Resolve builds the channel for src over [start, end]. With a filter id
// the filtered variant is tried first, falling back to the unfiltered
// channel of the same kind.
func (r *ChannelResolver) Resolve(ctx context.Context, src SourcedWaveform, start, end time.Time, filterID *int64) (*Channel, bool) {
	if filterID != nil {
		if ch := r.build(ctx, src, start, end, filterID); ch != nil {
			return ch, true
		}
		r.log.Debug("filtered channel unavailable, using unfiltered",
			"wfid", src.Wfdisc.ID, "filter_id", *filterID)
	}
	ch := r.build(ctx, src, start, end, nil)
	return ch, ch != nil
}

// Unfiltered builds the unfiltered channel for src.
func (r *ChannelResolver) Unfiltered(ctx context.Context, src SourcedWaveform, start, end time.Time) (*Channel, bool) {
	return r.Resolve(ctx, src, start, end, nil)
}

func (r *ChannelResolver) build(ctx context.Context, src SourcedWaveform, start, end time.Time, filterID *int64) *Channel {
	files := []records.Wfdisc{src.Wfdisc}
	var (
		ch  *Channel
		err error
	)
	switch {
	case src.Tag != nil && filterID != nil:
		ch, err = r.builder.FilteredBeamed(ctx, files, src.Tag.TagName, src.Tag.TagID, start, end, *filterID)
	case src.Tag != nil:
		ch, err = r.builder.Beamed(ctx, files, src.Tag.TagName, src.Tag.TagID, start, end)
	case filterID != nil:
		ch, err = r.builder.FilteredRaw(ctx, files, start, end, *filterID)
	default:
		ch, err = r.builder.Raw(ctx, files, start, end)
	}
	if err != nil {
		r.log.Warn("channel build failed", "wfid", src.Wfdisc.ID, "beamed", src.Beamed(), "error", err)
		return nil
	}
	return ch
}

// #endregion channel-resolver
