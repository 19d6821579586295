package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/eqplatform/model"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(" "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestRecordListRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.March, 1, 21, 0, 0, 0, time.UTC)
	input := Record{
		ID:           "batch-1",
		RequestID:    "req-1",
		Operation:    "generate-all-parts",
		Parts:        []string{"tpt3d", "bne", "bnw", "tbs", "bfs", "info"},
		Format:       "stl",
		LatitudeDeg:  38.12,
		BearingAngle: 17.260629270549007,
		Parameters:   model.DefaultParameters(),
		FailedParts:  []string{"bfs"},
		Error:        "render bfs: render engine failure",
		Elapsed:      1500 * time.Millisecond,
		CreatedAt:    now,
	}
	if err := store.Record(context.Background(), input); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]Record{input}, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestListNewestFirstAndLimit(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		rec := Record{
			ID:        fmt.Sprintf("req-%d", i),
			Operation: "generate-template",
			Parts:     []string{"tpt"},
			Format:    "svg",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Record(context.Background(), rec); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	got, err := store.List(context.Background(), 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"req-4", "req-3", "req-2"}, ids); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}

	all, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("list default: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("default limit returned %d records, want 5", len(all))
	}
	if all[0].FailedParts != nil {
		t.Fatalf("empty failed parts should decode as nil, got %v", all[0].FailedParts)
	}
}

func TestRecordValidation(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if err := store.Record(context.Background(), Record{Operation: "describe"}); err == nil {
		t.Fatal("expected missing id error")
	}
	if err := store.Record(context.Background(), Record{ID: "x"}); err == nil {
		t.Fatal("expected missing operation error")
	}
	if err := store.Record(context.Background(), Record{ID: "dup", Operation: "describe"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Record(context.Background(), Record{ID: "dup", Operation: "describe"}); err == nil {
		t.Fatal("expected duplicate id error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Record(ctx, Record{ID: "late", Operation: "describe"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled context: got %v", err)
	}
}

func TestNilStore(t *testing.T) {
	t.Parallel()

	var s *Store
	if err := s.Record(context.Background(), Record{ID: "x", Operation: "y"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Record on nil store: %v", err)
	}
	if _, err := s.List(context.Background(), 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("List on nil store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close on nil store: %v", err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
