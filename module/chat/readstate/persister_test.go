package readstate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
)

func TestDedupKeepsGreatestPerKey(t *testing.T) {
	events := []Event{
		{UserID: "alice", ChannelID: 1, TimestampID: "1700000000000.000002"},
		{UserID: "bob", ChannelID: 1, TimestampID: "1700000000000.000001"},
		{UserID: "alice", ChannelID: 1, TimestampID: "1700000000000.000009"},
		{UserID: "alice", ChannelID: 2, TimestampID: "1700000000000.000004"},
		{UserID: "alice", ChannelID: 1, TimestampID: "1700000000000.000005"},
	}

	rows := Dedup(events)
	if len(rows) != 3 {
		t.Fatalf("expected 3 deduped rows, got %d", len(rows))
	}
	byKey := map[string]string{}
	for _, r := range rows {
		byKey[Event{UserID: r.UserID, ChannelID: r.ChannelID}.Key()] = r.LastRead
	}
	if byKey["alice:1"] != "1700000000000.000009" {
		t.Fatalf("alice:1 = %q", byKey["alice:1"])
	}
	if byKey["bob:1"] != "1700000000000.000001" || byKey["alice:2"] != "1700000000000.000004" {
		t.Fatalf("unexpected dedup result: %v", byKey)
	}
}

func TestDedupEmptyBatch(t *testing.T) {
	if rows := Dedup(nil); len(rows) != 0 {
		t.Fatalf("empty batch produced %d rows", len(rows))
	}
}

func TestApplyEventsOlderValueNeverRegresses(t *testing.T) {
	store := NewMemStore()
	p := NewPersister(store)
	ctx := context.Background()

	if err := p.ApplyEvents(ctx, []Event{
		{UserID: "alice", ChannelID: 1, TimestampID: "1700000000100.000000"},
	}); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	// A late duplicate delivery of an older position.
	if err := p.ApplyEvents(ctx, []Event{
		{UserID: "alice", ChannelID: 1, TimestampID: "1700000000050.000000"},
	}); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	v, ok, _ := store.Get(ctx, "alice", 1)
	if !ok || v != "1700000000100.000000" {
		t.Fatalf("durable value regressed: %q", v)
	}
}

func TestApplyEventsIdempotent(t *testing.T) {
	store := NewMemStore()
	p := NewPersister(store)
	ctx := context.Background()

	batch := []Event{
		{UserID: "alice", ChannelID: 1, TimestampID: "1700000000000.000007"},
		{UserID: "bob", ChannelID: 1, TimestampID: "1700000000000.000003"},
	}
	for i := 0; i < 3; i++ {
		if err := p.ApplyEvents(ctx, batch); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	v, _, _ := store.Get(ctx, "alice", 1)
	if v != "1700000000000.000007" {
		t.Fatalf("alice value = %q", v)
	}
	v, _, _ = store.Get(ctx, "bob", 1)
	if v != "1700000000000.000003" {
		t.Fatalf("bob value = %q", v)
	}
}

func TestApplyEventsStoreOutagePropagates(t *testing.T) {
	store := NewMemStore()
	store.FailUpserts(errors.New("pg unavailable"))
	p := NewPersister(store)

	err := p.ApplyEvents(context.Background(), []Event{
		{UserID: "alice", ChannelID: 1, TimestampID: "1700000000000.000001"},
	})
	if err == nil {
		t.Fatal("expected store outage to surface for redelivery")
	}
}

func TestHandleBatchSkipsUndecodableRecords(t *testing.T) {
	store := NewMemStore()
	p := NewPersister(store)
	ctx := context.Background()

	good, _ := json.Marshal(Event{UserID: "alice", ChannelID: 1, TimestampID: "1700000000000.000002"})
	msgs := []*sarama.ConsumerMessage{
		{Topic: "im.read-state", Offset: 10, Value: []byte("not json")},
		{Topic: "im.read-state", Offset: 11, Value: good},
	}

	if err := p.HandleBatch(ctx, msgs); err != nil {
		t.Fatalf("HandleBatch: %v", err)
	}
	v, ok, _ := store.Get(ctx, "alice", 1)
	if !ok || v != "1700000000000.000002" {
		t.Fatalf("good record not applied: %q", v)
	}
}

func TestHandleBatchRejectsIncompleteEvents(t *testing.T) {
	store := NewMemStore()
	p := NewPersister(store)
	ctx := context.Background()

	good, _ := json.Marshal(Event{UserID: "alice", ChannelID: 1, TimestampID: "1700000000000.000002"})
	msgs := []*sarama.ConsumerMessage{
		// Valid JSON, but no usable key or value.
		{Topic: "im.read-state", Offset: 20, Value: []byte(`{}`)},
		{Topic: "im.read-state", Offset: 21, Value: []byte(`{"user_id":"alice"}`)},
		{Topic: "im.read-state", Offset: 22, Value: []byte(`{"user_id":"bob","channel_id":3}`)},
		{Topic: "im.read-state", Offset: 23, Value: good},
	}

	if err := p.HandleBatch(ctx, msgs); err != nil {
		t.Fatalf("HandleBatch: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "", 0); ok {
		t.Fatal("zero-valued row persisted from incomplete event")
	}
	if _, ok, _ := store.Get(ctx, "alice", 0); ok {
		t.Fatal("keyless row persisted from incomplete event")
	}
	if _, ok, _ := store.Get(ctx, "bob", 3); ok {
		t.Fatal("valueless row persisted from incomplete event")
	}
	v, ok, _ := store.Get(ctx, "alice", 1)
	if !ok || v != "1700000000000.000002" {
		t.Fatalf("complete record not applied: %q", v)
	}
}
