package message

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ChatPipe/module/chat/event"
	"ChatPipe/module/chat/seq"
	errs "ChatPipe/tools/errs"
)

// memBus records every publish; Wait blocks until n events arrived or the
// deadline passed (publishes happen on a background goroutine).
type memBus struct {
	mu     sync.Mutex
	events [][]byte
	ch     chan struct{}
}

func newMemBus() *memBus {
	return &memBus{ch: make(chan struct{}, 1024)}
}

func (b *memBus) Publish(_ context.Context, _ string, data []byte, _ map[string]string) error {
	b.mu.Lock()
	b.events = append(b.events, append([]byte(nil), data...))
	b.mu.Unlock()
	b.ch <- struct{}{}
	return nil
}

func (b *memBus) Wait(t *testing.T, n int) [][]byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-b.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d publishes", n)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.events...)
}

func newTestService(db DB, bus BusPublisher) *Service {
	return NewService(db, seq.NewSequencer(seq.NewMemCounter()),
		seq.NewTimestampIDGenWithClock(func() int64 { return 1_700_000_000_000 }), bus)
}

func TestSubmitMessageHappyPath(t *testing.T) {
	db := NewMemDB()
	db.AddChannel(1, "alice", "bob", "carol")
	bus := newMemBus()
	svc := newTestService(db, bus)

	res, err := svc.SubmitMessage(context.Background(), 1, "alice", "hello", "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	if res.Seq != 1 {
		t.Fatalf("first message seq = %d", res.Seq)
	}
	if res.MsgID == "" || res.TimestampID == "" {
		t.Fatalf("identifiers missing: %+v", res)
	}

	got, err := db.MessagesAfter(context.Background(), 1, 0, 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("persisted rows = %d, err = %v", len(got), err)
	}
	if got[0].Content != "hello" || got[0].AuthorID != "alice" {
		t.Fatalf("persisted row mismatch: %+v", got[0])
	}

	// One message.new plus one unread.count per non-author member.
	events := bus.Wait(t, 3)
	kinds := map[string]int{}
	for _, raw := range events {
		env, err := event.DecodeEnvelope(raw)
		if err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		kinds[env.Kind]++
	}
	if kinds[event.KindMessageNew] != 1 || kinds[event.KindUnreadCount] != 2 {
		t.Fatalf("unexpected event mix: %v", kinds)
	}
}

func TestSubmitMessageUnknownChannel(t *testing.T) {
	db := NewMemDB()
	svc := newTestService(db, newMemBus())

	_, err := svc.SubmitMessage(context.Background(), 42, "alice", "hi", "")
	if errs.Code(err) != errs.CodeChannelNotFound {
		t.Fatalf("expected channel-not-found, got %v", err)
	}
}

func TestSubmitMessageValidation(t *testing.T) {
	db := NewMemDB()
	db.AddChannel(1, "alice")
	svc := newTestService(db, newMemBus())

	cases := []struct {
		name      string
		channelID int64
		authorID  string
	}{
		{"zero channel", 0, "alice"},
		{"negative channel", -5, "alice"},
		{"empty author", 1, ""},
	}
	for _, tc := range cases {
		_, err := svc.SubmitMessage(context.Background(), tc.channelID, tc.authorID, "hi", "")
		if errs.Code(err) != errs.CodeInvalidArgument {
			t.Fatalf("%s: expected invalid-argument, got %v", tc.name, err)
		}
	}
}

func TestSubmitMessageSequencerOutageAborts(t *testing.T) {
	db := NewMemDB()
	db.AddChannel(1, "alice")
	bus := newMemBus()

	counter := seq.NewMemCounter()
	counter.Fail(errors.New("redis down"))
	svc := NewService(db, seq.NewSequencer(counter),
		seq.NewTimestampIDGen(), bus)

	_, err := svc.SubmitMessage(context.Background(), 1, "alice", "hi", "")
	if errs.Code(err) != errs.CodeSequenceGeneration {
		t.Fatalf("expected sequence-generation error, got %v", err)
	}

	rows, _ := db.MessagesAfter(context.Background(), 1, 0, 10)
	if len(rows) != 0 {
		t.Fatalf("message persisted despite sequencer outage: %d rows", len(rows))
	}
	if len(bus.events) != 0 {
		t.Fatalf("events published despite sequencer outage: %d", len(bus.events))
	}
}

func TestSubmitMessageInsertFailureLeavesGap(t *testing.T) {
	db := NewMemDB()
	db.AddChannel(1, "alice", "bob")
	bus := newMemBus()
	svc := newTestService(db, bus)

	if _, err := svc.SubmitMessage(context.Background(), 1, "alice", "one", ""); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	bus.Wait(t, 2)

	db.FailInserts(errors.New("pg unavailable"))
	if _, err := svc.SubmitMessage(context.Background(), 1, "alice", "two", ""); err == nil {
		t.Fatal("expected insert failure to surface")
	}

	// The failed attempt consumed seq 2; the next success gets 3.
	db.FailInserts(nil)
	res, err := svc.SubmitMessage(context.Background(), 1, "alice", "three", "")
	if err != nil {
		t.Fatalf("third submit: %v", err)
	}
	if res.Seq != 3 {
		t.Fatalf("expected gap to persist, got seq %d", res.Seq)
	}
}

func TestSubmitMessageConcurrentSequencing(t *testing.T) {
	db := NewMemDB()
	db.AddChannel(1, "alice")
	bus := newMemBus()
	svc := NewService(db, seq.NewSequencer(seq.NewMemCounter()),
		seq.NewTimestampIDGen(), bus)

	const workers = 4
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := svc.SubmitMessage(context.Background(), 1, "alice", "m", ""); err != nil {
					t.Errorf("SubmitMessage: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	rows, err := db.MessagesAfter(context.Background(), 1, 0, workers*perWorker+1)
	if err != nil {
		t.Fatalf("MessagesAfter: %v", err)
	}
	if len(rows) != workers*perWorker {
		t.Fatalf("expected %d rows, got %d", workers*perWorker, len(rows))
	}
	for i, m := range rows {
		if m.Seq != int64(i+1) {
			t.Fatalf("row %d has seq %d", i, m.Seq)
		}
	}
}

func TestMessagesAfterCatchUp(t *testing.T) {
	db := NewMemDB()
	db.AddChannel(1, "alice")
	svc := newTestService(db, newMemBus())

	for i := 0; i < 5; i++ {
		if _, err := svc.SubmitMessage(context.Background(), 1, "alice", "m", ""); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	rows, err := svc.MessagesAfter(context.Background(), 1, 3, 10)
	if err != nil {
		t.Fatalf("MessagesAfter: %v", err)
	}
	if len(rows) != 2 || rows[0].Seq != 4 || rows[1].Seq != 5 {
		t.Fatalf("catch-up returned wrong rows: %+v", rows)
	}
}
