package history_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bdscan/internal/history"
	"bdscan/internal/testsupport"
)

var base = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func entry(id string, offset time.Duration) history.Entry {
	return history.Entry{
		ID:            id,
		Fingerprint:   "fp-" + id[:1],
		SourcePath:    "/mnt/bd",
		VolumeLabel:   "MOVIE_DISC",
		Title:         "Movie Disc",
		StartedAt:     base.Add(offset),
		FinishedAt:    base.Add(offset + 90*time.Second),
		Phase:         "done",
		TotalBytes:    1000,
		FinishedBytes: 1000,
		DiscSize:      4000,
		Playlists:     3,
		StreamFiles:   2,
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	versions, err := store.Versions(context.Background())
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if diff := cmp.Diff([]string{"0001_init"}, versions); diff != "" {
		t.Fatalf("migrations (-want +got):\n%s", diff)
	}

	// Reopening must not reapply anything.
	again, err := history.OpenPath(store.Path())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
}

func TestRecordAndGet(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()

	e := entry("a1b2c3", 0)
	e.Cancelled = true
	e.Phase = "cancelled"
	e.ErrorMessage = "scan cancelled"
	e.SummaryJSON = `{"title":"Movie Disc"}`
	e.FileErrors = map[string]string{"00002.M2TS": "read: medium error", "00001.M2TS": "corrupt"}
	if err := store.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.Get(ctx, "a1b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	e.FileErrorCount = 2
	if diff := cmp.Diff(e, *got); diff != "" {
		t.Fatalf("entry (-want +got):\n%s", diff)
	}
	if got.Duration() != 90*time.Second {
		t.Fatalf("duration = %v", got.Duration())
	}

	// Recording again replaces the file errors.
	e.FileErrors = map[string]string{"00003.M2TS": "gone"}
	if err := store.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err = store.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(e.FileErrors, got.FileErrors); diff != "" {
		t.Fatalf("file errors (-want +got):\n%s", diff)
	}
}

func TestGetErrors(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, id := range []string{"abc1", "abc2"} {
		if err := store.Record(ctx, entry(id, 0)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if _, err := store.Get(ctx, "zzz"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
	if _, err := store.Get(ctx, "abc"); !errors.Is(err, history.ErrAmbiguousID) {
		t.Fatalf("ambiguous: %v", err)
	}
	if _, err := store.Get(ctx, "ab%"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("wildcards must be literal: %v", err)
	}
	if _, err := store.Get(ctx, "abc2"); err != nil {
		t.Fatalf("exact: %v", err)
	}
}

func TestRecordRequiresID(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	if err := store.Record(context.Background(), history.Entry{}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestListAndPrune(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for i := range 5 {
		// Sub-second offsets check that ordering survives text storage.
		e := entry(fmt.Sprintf("%c-scan", 'a'+i), time.Duration(i)*300*time.Millisecond)
		if i == 4 {
			e.FileErrors = map[string]string{"00001.M2TS": "corrupt"}
		}
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	list, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, e := range list {
		ids = append(ids, e.ID)
	}
	if diff := cmp.Diff([]string{"e-scan", "d-scan", "c-scan"}, ids); diff != "" {
		t.Fatalf("list order (-want +got):\n%s", diff)
	}
	if list[0].FileErrorCount != 1 || list[0].FileErrors != nil {
		t.Fatalf("list entry errors = %d %v", list[0].FileErrorCount, list[0].FileErrors)
	}

	byDisc, err := store.FindByFingerprint(ctx, "fp-b")
	if err != nil || len(byDisc) != 1 || byDisc[0].ID != "b-scan" {
		t.Fatalf("FindByFingerprint = %v, %v", byDisc, err)
	}

	removed, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d", removed)
	}
	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[1].ID != "d-scan" {
		t.Fatalf("remaining = %v", all)
	}
}
