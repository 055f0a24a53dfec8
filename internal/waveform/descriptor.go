package waveform

import (
	"context"
	"fmt"
	"time"
)

// Descriptor identifies a channel segment: a channel over a time window,
// as of the file it was built from.
type Descriptor struct {
	ChannelName  string
	Start        time.Time
	End          time.Time
	CreationTime time.Time
}

// Key is the cache key for the segment.
func (d Descriptor) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", d.ChannelName,
		d.Start.UTC().Format(time.RFC3339Nano),
		d.End.UTC().Format(time.RFC3339Nano),
		d.CreationTime.UTC().Format(time.RFC3339Nano))
}

// IDCache memoizes the waveform files behind a channel segment. Writes are
// best effort and the cache is never read back during resolution.
type IDCache interface {
	Put(ctx context.Context, d Descriptor, wfids []int64)
}

// NoopCache discards every write.
type NoopCache struct{}

func (NoopCache) Put(context.Context, Descriptor, []int64) {}
