package provenance

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

// #region helpers
func tempLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "lineage.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// #endregion helpers

// #region log-decision-tests
func TestRecordAndLatest(t *testing.T) {
	ctx := context.Background()
	l := tempLog(t)

	entry := Entry{
		HypothesisID: "h2",
		DetectionID:  "d1",
		ParentID:     "h1",
		Stage:        "AL2",
		Account:      "al2",
		Arid:         7,
		Orid:         70,
		Source:       "assoc",
		Decision:     "build_from_assoc",
		ParentRule:   "previous_assoc",
		InputsJSON:   EncodeInputs(DecisionInputs{HasPreviousStage: true, Phase: "P"}),
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := l.Record(ctx, entry); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, ok, err := l.Latest(ctx, "h2")
	if err != nil || !ok {
		t.Fatalf("Latest: %v %v", ok, err)
	}
	if !got.CreatedAt.Equal(entry.CreatedAt) {
		t.Fatalf("created_at: expected %v, got %v", entry.CreatedAt, got.CreatedAt)
	}
	got.CreatedAt = entry.CreatedAt
	if got != entry {
		t.Fatalf("expected %+v, got %+v", entry, got)
	}

	var in DecisionInputs
	if err := json.Unmarshal([]byte(got.InputsJSON), &in); err != nil || !in.HasPreviousStage {
		t.Fatalf("inputs: %+v %v", in, err)
	}
}

func TestZeroCreatedAtAndOptionalFields(t *testing.T) {
	ctx := context.Background()
	l := tempLog(t)

	before := time.Now().UTC()
	err := l.Record(ctx, Entry{HypothesisID: "h1", DetectionID: "d1", Stage: "AL1", Account: "al1", Arid: 7, Source: "arrival", Decision: "build_from_arrival"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, _, err := l.Latest(ctx, "h1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.CreatedAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
	if got.ParentID != "" || got.Orid != 0 || got.ParentRule != "" {
		t.Errorf("expected empty optional fields, got %+v", got)
	}
}

func TestOridNullOnlyForArrivals(t *testing.T) {
	ctx := context.Background()
	l := tempLog(t)

	rows := []Entry{
		{HypothesisID: "assoc0", DetectionID: "d1", Stage: "AL1", Account: "al1", Arid: 7, Orid: 0, Source: SourceAssoc, Decision: "build_from_assoc"},
		{HypothesisID: "arr", DetectionID: "d1", Stage: "AL1", Account: "al1", Arid: 7, Orid: 9, Source: SourceArrival, Decision: "build_from_arrival"},
	}
	for _, e := range rows {
		if err := l.Record(ctx, e); err != nil {
			t.Fatalf("Record %s: %v", e.HypothesisID, err)
		}
	}

	for id, wantNull := range map[string]bool{"assoc0": false, "arr": true} {
		var isNull bool
		if err := l.db.QueryRowContext(ctx, `SELECT orid IS NULL FROM lineage_log WHERE hypothesis_id = ?`, id).Scan(&isNull); err != nil {
			t.Fatalf("select %s: %v", id, err)
		}
		if isNull != wantNull {
			t.Errorf("%s: orid IS NULL = %v, want %v", id, isNull, wantNull)
		}
	}
}

func TestLatestMissing(t *testing.T) {
	_, ok, err := tempLog(t).Latest(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("expected missing entry, got %v %v", ok, err)
	}
}

func TestClosedDatabase(t *testing.T) {
	l := tempLog(t)
	l.Close()
	if err := l.Record(context.Background(), Entry{HypothesisID: "h"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region chain-tests
func TestChainWalksParents(t *testing.T) {
	ctx := context.Background()
	l := tempLog(t)
	for _, e := range []Entry{
		{HypothesisID: "a1", Stage: "AL1"},
		{HypothesisID: "a2", ParentID: "a1", Stage: "AL2"},
		{HypothesisID: "s2", ParentID: "a2", Stage: "AL2"},
		{HypothesisID: "s3", ParentID: "s2", Stage: "AL3"},
	} {
		e.DetectionID, e.Account, e.Source, e.Decision = "d", "acct", "arrival", "build_from_arrival"
		if err := l.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	chain, err := l.Chain(ctx, "s3", 10)
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	var ids []string
	for _, e := range chain {
		ids = append(ids, e.HypothesisID)
	}
	want := []string{"s3", "s2", "a2", "a1"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}

	short, _ := l.Chain(ctx, "s3", 2)
	if len(short) != 2 {
		t.Fatalf("expected depth-limited chain, got %d", len(short))
	}
}

func TestChainStopsAtUnloggedParent(t *testing.T) {
	ctx := context.Background()
	l := tempLog(t)
	if err := l.Record(ctx, Entry{HypothesisID: "x", ParentID: "ghost", DetectionID: "d", Stage: "AL2", Account: "a", Source: "assoc", Decision: "d"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	chain, err := l.Chain(ctx, "x", 10)
	if err != nil || len(chain) != 1 {
		t.Fatalf("expected single entry, got %v %v", chain, err)
	}
}

// #endregion chain-tests
