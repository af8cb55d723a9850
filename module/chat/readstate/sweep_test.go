package readstate

import (
	"context"
	"testing"
	"time"
)

func TestSweepRepairsStaleDivergence(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base

	store := NewMemStore().WithClock(func() time.Time { return clock })
	markers := NewMemMarker()
	ctx := context.Background()

	// Durable row written, then the marker advanced but the queue path lost
	// the update (crash between marker write and enqueue).
	if err := store.UpsertGreatest(ctx, []Receipt{{
		UserID: "alice", ChannelID: 1, LastRead: "1700000000100.000000",
	}}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	if err := markers.Set(ctx, "alice", 1, "1700000000900.000000"); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	// Twenty minutes later the row qualifies as stale.
	clock = base.Add(20 * time.Minute)
	sw := NewSweeper(store, markers, 5*time.Minute, 10*time.Minute).
		WithClock(func() time.Time { return clock })

	examined, fixed, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if examined != 1 || fixed != 1 {
		t.Fatalf("examined=%d fixed=%d", examined, fixed)
	}

	v, _, _ := store.Get(ctx, "alice", 1)
	if v != "1700000000900.000000" {
		t.Fatalf("row not lifted to marker value: %q", v)
	}
}

func TestSweepSkipsFreshRows(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base

	store := NewMemStore().WithClock(func() time.Time { return clock })
	markers := NewMemMarker()
	ctx := context.Background()

	if err := store.UpsertGreatest(ctx, []Receipt{{
		UserID: "alice", ChannelID: 1, LastRead: "1700000000100.000000",
	}}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	_ = markers.Set(ctx, "alice", 1, "1700000000900.000000")

	// Only five minutes old: below the staleness threshold, untouched even
	// though the marker is ahead.
	clock = base.Add(5 * time.Minute)
	sw := NewSweeper(store, markers, 5*time.Minute, 10*time.Minute).
		WithClock(func() time.Time { return clock })

	examined, fixed, err := sw.SweepOnce(ctx)
	if err != nil || examined != 0 || fixed != 0 {
		t.Fatalf("examined=%d fixed=%d err=%v", examined, fixed, err)
	}
	v, _, _ := store.Get(ctx, "alice", 1)
	if v != "1700000000100.000000" {
		t.Fatalf("fresh row modified: %q", v)
	}
}

func TestSweepTrustsRowsWithoutMarker(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base

	store := NewMemStore().WithClock(func() time.Time { return clock })
	markers := NewMemMarker()
	ctx := context.Background()

	if err := store.UpsertGreatest(ctx, []Receipt{{
		UserID: "bob", ChannelID: 2, LastRead: "1700000000100.000000",
	}}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	clock = base.Add(time.Hour)
	sw := NewSweeper(store, markers, 5*time.Minute, 10*time.Minute).
		WithClock(func() time.Time { return clock })

	examined, fixed, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if examined != 1 || fixed != 0 {
		t.Fatalf("examined=%d fixed=%d", examined, fixed)
	}
	v, _, _ := store.Get(ctx, "bob", 2)
	if v != "1700000000100.000000" {
		t.Fatalf("markerless row modified: %q", v)
	}
}

func TestSweepLeavesEqualOrBehindMarkersAlone(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base

	store := NewMemStore().WithClock(func() time.Time { return clock })
	markers := NewMemMarker()
	ctx := context.Background()

	_ = store.UpsertGreatest(ctx, []Receipt{
		{UserID: "eq", ChannelID: 1, LastRead: "1700000000500.000000"},
		{UserID: "ahead", ChannelID: 1, LastRead: "1700000000500.000000"},
	})
	_ = markers.Set(ctx, "eq", 1, "1700000000500.000000")
	// Marker behind the durable row (a slow replica repopulated it).
	_ = markers.Set(ctx, "ahead", 1, "1700000000100.000000")

	clock = base.Add(time.Hour)
	sw := NewSweeper(store, markers, 5*time.Minute, 10*time.Minute).
		WithClock(func() time.Time { return clock })

	examined, fixed, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if examined != 2 || fixed != 0 {
		t.Fatalf("examined=%d fixed=%d", examined, fixed)
	}
}
