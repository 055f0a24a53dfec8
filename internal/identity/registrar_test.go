package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func tempRegistrar(t *testing.T) *Registrar {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestDetectionIDStable(t *testing.T) {
	ctx := context.Background()
	r := tempRegistrar(t)

	first, err := r.DetectionID(ctx, 7)
	if err != nil {
		t.Fatalf("DetectionID: %v", err)
	}
	again, err := r.DetectionID(ctx, 7)
	if err != nil {
		t.Fatalf("DetectionID: %v", err)
	}
	if first != again {
		t.Fatalf("expected stable id, got %s then %s", first, again)
	}
	other, _ := r.DetectionID(ctx, 8)
	if other == first {
		t.Fatal("expected distinct ids for distinct arids")
	}

	arid, ok, err := r.AridForDetection(ctx, first)
	if err != nil || !ok || arid != 7 {
		t.Fatalf("AridForDetection: %d %v %v", arid, ok, err)
	}
	if _, ok, _ := r.AridForDetection(ctx, uuid.New()); ok {
		t.Fatal("expected unknown detection id to be absent")
	}
}

func TestHypothesisIDsScopedByAccount(t *testing.T) {
	ctx := context.Background()
	r := tempRegistrar(t)

	al1, _ := r.ArrivalHypothesisID(ctx, "al1", 5)
	al2, _ := r.ArrivalHypothesisID(ctx, "al2", 5)
	if al1 == al2 {
		t.Fatal("expected per-account arrival hypothesis ids")
	}
	assoc, err := r.AssocHypothesisID(ctx, "al1", 5, 100)
	if err != nil {
		t.Fatalf("AssocHypothesisID: %v", err)
	}
	if assoc == al1 {
		t.Fatal("expected assoc and arrival ids to differ")
	}
	again, _ := r.AssocHypothesisID(ctx, "al1", 5, 100)
	if again != assoc {
		t.Fatal("expected stable assoc id")
	}
}

func TestComponentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := tempRegistrar(t)

	arrivalID, _ := r.ArrivalHypothesisID(ctx, "al2", 12)
	account, arid, ok, err := r.ArrivalComponents(ctx, arrivalID)
	if err != nil || !ok || account != "al2" || arid != 12 {
		t.Fatalf("ArrivalComponents: %s %d %v %v", account, arid, ok, err)
	}
	if _, _, ok, _ := r.ArrivalComponents(ctx, uuid.New()); ok {
		t.Fatal("expected unknown arrival hypothesis")
	}

	assocID, _ := r.AssocHypothesisID(ctx, "al2", 12, 34)
	if _, _, ok, _ := r.ArrivalComponents(ctx, assocID); ok {
		t.Fatal("assoc id must not resolve through the arrival path")
	}
	account, arid, orid, ok, err := r.AssocComponents(ctx, assocID)
	if err != nil || !ok || account != "al2" || arid != 12 || orid != 34 {
		t.Fatalf("AssocComponents: %s %d %d %v %v", account, arid, orid, ok, err)
	}
}

func TestOpenUsesWAL(t *testing.T) {
	r := tempRegistrar(t)
	var mode string
	if err := r.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}
