package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/danielpatrickdp/lineage-bridge/internal/detection"
	"github.com/danielpatrickdp/lineage-bridge/internal/filterid"
	"github.com/danielpatrickdp/lineage-bridge/internal/lineage"
	"github.com/danielpatrickdp/lineage-bridge/internal/records"
	"github.com/danielpatrickdp/lineage-bridge/internal/stage"
	"github.com/danielpatrickdp/lineage-bridge/internal/waveform"
)

// #region fake-resolver
type fakeResolver struct {
	dets       []detection.Detection
	hyps       []detection.Hypothesis
	recs       []lineage.FilterRecordIDsByUsage
	partial    bool
	err        error
	gotIDs     []uuid.UUID
	gotStage   string
	gotStation []string
	gotWindow  [2]time.Time
}

func (f *fakeResolver) FindDetectionsByIDs(_ context.Context, ids []uuid.UUID, stageName string) ([]detection.Detection, error) {
	f.gotIDs, f.gotStage = ids, stageName
	return f.dets, f.err
}

func (f *fakeResolver) FindDetectionsByStationsAndTime(_ context.Context, stations []string, start, end time.Time, stageName string, excluded []uuid.UUID) ([]detection.Detection, error) {
	f.gotStation, f.gotWindow, f.gotStage, f.gotIDs = stations, [2]time.Time{start, end}, stageName, excluded
	return f.dets, f.err
}

func (f *fakeResolver) FindHypothesesByIDs(_ context.Context, ids []uuid.UUID) ([]detection.Hypothesis, error) {
	f.gotIDs = ids
	return f.hyps, f.err
}

func (f *fakeResolver) FindFilterRecords(_ context.Context, ids []uuid.UUID) ([]lineage.FilterRecordIDsByUsage, bool, error) {
	f.gotIDs = ids
	return f.recs, f.partial, f.err
}

// #endregion fake-resolver

func dial(t *testing.T, res Resolver) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterLineageService(srv, NewServer(res, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func sampleHypothesis() detection.Hypothesis {
	det := uuid.New()
	parent := detection.HypothesisID{DetectionID: det, ID: uuid.New()}
	parentKey := detection.ArrivalKey("al1", 7)
	orid := int64(3)
	at := time.Date(2024, 3, 1, 0, 1, 0, 0, time.UTC)
	return detection.Hypothesis{
		ID:          detection.HypothesisID{DetectionID: det, ID: uuid.New()},
		Key:         detection.AssocKey("al2", records.AssocKey{Arid: 7, Orid: 3}),
		Stage:       "AL2",
		Parent:      &parent,
		ParentKey:   &parentKey,
		Station:     "ASAR",
		Phase:       "P",
		ArrivalTime: at,
		Orid:        &orid,
		Channel:     waveform.Channel{Name: "ASAR.SHZ/filter,100"},
		Analysis: detection.AnalysisWaveform{
			Channel: waveform.Channel{Name: "ASAR.SHZ"},
			Start:   at.Add(-500 * time.Millisecond),
			End:     at.Add(300 * time.Millisecond),
			Usage:   filterid.UsageOnset,
		},
	}
}

func TestDetectionsOverTheWire(t *testing.T) {
	h := sampleHypothesis()
	res := &fakeResolver{dets: []detection.Detection{{
		ID: h.ID.DetectionID, Arid: 7, Station: "ASAR", Stage: "AL2",
		Hypotheses: []detection.HypothesisID{*h.Parent, h.ID},
		Built:      []detection.Hypothesis{h},
	}}}
	c := dial(t, res)

	dets, err := c.FindDetectionsByIDs(context.Background(), []uuid.UUID{h.ID.DetectionID}, "AL2")
	require.NoError(t, err)
	assert.Equal(t, "AL2", res.gotStage)
	assert.Equal(t, []uuid.UUID{h.ID.DetectionID}, res.gotIDs)

	require.Len(t, dets, 1)
	d := dets[0]
	assert.Equal(t, int64(7), d.Arid)
	require.Len(t, d.Hypotheses, 2)
	assert.Equal(t, h.Parent.ID.String(), d.Hypotheses[0].ID)
	require.Len(t, d.Built, 1)
	b := d.Built[0]
	assert.Equal(t, "al2/7/3", b.Key)
	assert.Equal(t, "al1/7", b.ParentKey)
	assert.Equal(t, "ASAR.SHZ/filter,100", b.Channel)
	assert.Equal(t, "ONSET", b.FilterUsage)
	require.NotNil(t, b.Orid)
	assert.Equal(t, int64(3), *b.Orid)
	assert.True(t, h.ArrivalTime.Equal(b.ArrivalTime))
}

func TestStationWindowOverTheWire(t *testing.T) {
	res := &fakeResolver{}
	c := dial(t, res)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	skip := uuid.New()

	dets, err := c.FindDetectionsByStationsAndTime(context.Background(), []string{"ASAR"}, start, start.Add(time.Hour), "AL1", []uuid.UUID{skip})
	require.NoError(t, err)
	assert.Empty(t, dets)
	assert.Equal(t, []string{"ASAR"}, res.gotStation)
	assert.True(t, res.gotWindow[0].Equal(start))
	assert.Equal(t, []uuid.UUID{skip}, res.gotIDs)

	_, err = c.FindDetectionsByStationsAndTime(context.Background(), []string{"ASAR"}, start, start.Add(-time.Hour), "AL1", nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Unwrap(err)))
}

func TestFilterRecordsOverTheWire(t *testing.T) {
	id := uuid.New()
	res := &fakeResolver{
		recs:    []lineage.FilterRecordIDsByUsage{{HypothesisID: id, Usages: map[filterid.Usage]int64{filterid.UsageFK: 8}}},
		partial: true,
	}
	c := dial(t, res)

	recs, partial, err := c.FindFilterRecords(context.Background(), []uuid.UUID{id, uuid.New()})
	require.NoError(t, err)
	assert.True(t, partial)
	require.Len(t, recs, 1)
	assert.Equal(t, id.String(), recs[0].HypothesisID)
	assert.Equal(t, map[string]int64{"FK": 8}, recs[0].Usages)
}

func TestHypothesesOverTheWire(t *testing.T) {
	h := sampleHypothesis()
	c := dial(t, &fakeResolver{hyps: []detection.Hypothesis{h}})

	hyps, err := c.FindHypothesesByIDs(context.Background(), []uuid.UUID{h.ID.ID})
	require.NoError(t, err)
	require.Len(t, hyps, 1)
	assert.Equal(t, h.ID.ID.String(), hyps[0].ID)
	assert.Equal(t, h.Parent.ID.String(), hyps[0].ParentID)
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"configuration", &stage.ConfigurationError{Stage: "AL9", Err: stage.ErrUnknownStage}, codes.FailedPrecondition},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"store", errors.New("disk full"), codes.Internal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := dial(t, &fakeResolver{err: tc.err})
			_, err := c.FindHypothesesByIDs(context.Background(), []uuid.UUID{uuid.New()})
			require.Error(t, err)
			assert.Equal(t, tc.want, status.Code(errors.Unwrap(err)))
		})
	}
}

func TestMalformedIDIsInvalidArgument(t *testing.T) {
	res := &fakeResolver{}
	c := dial(t, res)
	in, err := encode(HypothesisIDsRequest{HypothesisIDs: []string{"not-a-uuid"}})
	require.NoError(t, err)
	_, err = c.client.FindFilterRecords(context.Background(), in)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Nil(t, res.gotIDs)
}
