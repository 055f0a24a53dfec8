package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/lineage-bridge/internal/records"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tempStage(t *testing.T) *StageStore {
	t.Helper()
	s, err := OpenStage(filepath.Join(t.TempDir(), "stage.db"))
	if err != nil {
		t.Fatalf("OpenStage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestArrivalsByIDsAcrossPartitions(t *testing.T) {
	ctx := context.Background()
	s := tempStage(t)

	n := records.IDPartitionSize + 10
	ids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		a := records.Arrival{ID: int64(i), Station: "ASAR", Channel: "SHZ", Time: base.Add(time.Duration(i) * time.Second), Phase: "P"}
		if err := s.InsertArrival(ctx, a); err != nil {
			t.Fatalf("InsertArrival: %v", err)
		}
		ids = append(ids, int64(i))
	}
	ids = append(ids, 1, 2, 99999)

	got, err := s.FindArrivalsByIDs(ctx, ids)
	if err != nil {
		t.Fatalf("FindArrivalsByIDs: %v", err)
	}
	if len(got) != n {
		t.Fatalf("expected %d arrivals, got %d", n, len(got))
	}
}

func TestArrivalRoundTripKeepsTime(t *testing.T) {
	ctx := context.Background()
	s := tempStage(t)
	want := records.Arrival{ID: 7, Station: "WRA", Channel: "BHZ", Time: base.Add(250 * time.Millisecond), Phase: "Pn", Amplitude: 111.111, Period: 0.222}
	if err := s.InsertArrival(ctx, want); err != nil {
		t.Fatalf("InsertArrival: %v", err)
	}
	got, err := s.FindArrivalsByIDs(ctx, []int64{7})
	if err != nil || len(got) != 1 {
		t.Fatalf("FindArrivalsByIDs: %v %v", got, err)
	}
	if !got[0].Time.Equal(want.Time) {
		t.Errorf("time: expected %v, got %v", want.Time, got[0].Time)
	}
	if got[0].Phase != "Pn" || got[0].Amplitude != 111.111 {
		t.Errorf("unexpected arrival %+v", got[0])
	}
}

func TestEmptyInputReturnsNothing(t *testing.T) {
	ctx := context.Background()
	s := tempStage(t)
	if got, err := s.FindArrivalsByIDs(ctx, nil); err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
	if got, err := s.FindAssocsByKeys(ctx, nil); err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
	if got, err := s.FindArrivalsByStationsAndTime(ctx, nil, nil, base, base, 0, 0); err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
}

func TestArrivalsByStationsAndTime(t *testing.T) {
	ctx := context.Background()
	s := tempStage(t)
	for _, a := range []records.Arrival{
		{ID: 1, Station: "ASAR", Channel: "SHZ", Time: base.Add(-400 * time.Millisecond), Phase: "P"},
		{ID: 2, Station: "ASAR", Channel: "SHZ", Time: base.Add(10 * time.Second), Phase: "P"},
		{ID: 3, Station: "ASAR", Channel: "SHZ", Time: base.Add(time.Minute + 200*time.Millisecond), Phase: "S"},
		{ID: 4, Station: "WRA", Channel: "SHZ", Time: base.Add(10 * time.Second), Phase: "P"},
		{ID: 5, Station: "ASAR", Channel: "SHZ", Time: base.Add(-time.Second), Phase: "P"},
	} {
		if err := s.InsertArrival(ctx, a); err != nil {
			t.Fatalf("InsertArrival: %v", err)
		}
	}

	got, err := s.FindArrivalsByStationsAndTime(ctx, []string{"ASAR"}, []int64{2}, base, base.Add(time.Minute), 500*time.Millisecond, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("FindArrivalsByStationsAndTime: %v", err)
	}
	var ids []int64
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("expected arids [1 3], got %v", ids)
	}
}

func TestAssocsByAridsAndKeys(t *testing.T) {
	ctx := context.Background()
	s := tempStage(t)
	for _, a := range []records.Assoc{
		{Key: records.AssocKey{Arid: 1, Orid: 10}, Phase: "P"},
		{Key: records.AssocKey{Arid: 1, Orid: 11}, Phase: "P"},
		{Key: records.AssocKey{Arid: 2, Orid: 10}, Phase: "S"},
	} {
		if err := s.InsertAssoc(ctx, a); err != nil {
			t.Fatalf("InsertAssoc: %v", err)
		}
	}

	byArid, err := s.FindAssocsByArids(ctx, []int64{1})
	if err != nil {
		t.Fatalf("FindAssocsByArids: %v", err)
	}
	if len(byArid) != 2 {
		t.Fatalf("expected 2 assocs, got %d", len(byArid))
	}

	byKey, err := s.FindAssocsByKeys(ctx, []records.AssocKey{{Arid: 2, Orid: 10}, {Arid: 1, Orid: 99}})
	if err != nil {
		t.Fatalf("FindAssocsByKeys: %v", err)
	}
	if len(byKey) != 1 || byKey[0].Phase != "S" {
		t.Fatalf("expected the 2/10 assoc, got %+v", byKey)
	}
}

func TestAmplitudesAndFilterParams(t *testing.T) {
	ctx := context.Background()
	s := tempStage(t)
	if err := s.InsertAmplitude(ctx, records.Amplitude{ID: 5, Arid: 1, Type: "A5/2", Amplitude: 3, Period: 0.5}); err != nil {
		t.Fatalf("InsertAmplitude: %v", err)
	}
	amps, err := s.FindAmplitudesByArids(ctx, []int64{1})
	if err != nil || len(amps) != 1 || !amps[0].Time.IsZero() {
		t.Fatalf("FindAmplitudesByArids: %+v %v", amps, err)
	}

	arrivalParams := s.ArrivalFilterParams()
	for _, p := range []records.FilterParam{
		{AnchorID: 1, Group: "FK", Value: 100, LoadedAt: base},
		{AnchorID: 1, Group: "ONSET", Value: 200, LoadedAt: base.Add(time.Hour)},
		{AnchorID: 2, Group: "FK", Value: 300, LoadedAt: base},
	} {
		if err := arrivalParams.Insert(ctx, p); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	got, err := arrivalParams.FindFilterParamsByIDs(ctx, []int64{1})
	if err != nil {
		t.Fatalf("FindFilterParamsByIDs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}

	// amplitude rows live in their own table
	none, err := s.AmplitudeFilterParams().FindFilterParamsByIDs(ctx, []int64{1})
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no amplitude rows, got %v %v", none, err)
	}
}
