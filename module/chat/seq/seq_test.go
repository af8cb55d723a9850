package seq

import (
	"context"
	"errors"
	"sync"
	"testing"

	errs "ChatPipe/tools/errs"
)

func TestSequencerRejectsBadChannel(t *testing.T) {
	s := NewSequencer(NewMemCounter())

	for _, id := range []int64{0, -1} {
		_, err := s.Next(context.Background(), id)
		if errs.Code(err) != errs.CodeInvalidArgument {
			t.Fatalf("channel %d: expected invalid-argument, got %v", id, err)
		}
	}
}

func TestSequencerStrictlyIncreasing(t *testing.T) {
	s := NewSequencer(NewMemCounter())
	ctx := context.Background()

	var prev int64
	for i := 0; i < 50; i++ {
		v, err := s.Next(ctx, 7)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if v != prev+1 {
			t.Fatalf("expected %d, got %d", prev+1, v)
		}
		prev = v
	}

	// Independent channels have independent counters.
	v, err := s.Next(ctx, 8)
	if err != nil || v != 1 {
		t.Fatalf("channel 8 first seq = %d, err = %v", v, err)
	}
}

func TestSequencerConcurrentNoGapsNoDuplicates(t *testing.T) {
	s := NewSequencer(NewMemCounter())
	ctx := context.Background()

	const workers = 2
	const perWorker = 100

	var mu sync.Mutex
	got := make(map[int64]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				v, err := s.Next(ctx, 1)
				if err != nil {
					t.Errorf("Next: %v", err)
					return
				}
				mu.Lock()
				if got[v] {
					t.Errorf("duplicate sequence %d", v)
				}
				got[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for v := int64(1); v <= workers*perWorker; v++ {
		if !got[v] {
			t.Fatalf("sequence %d missing from allocation", v)
		}
	}
}

func TestSequencerSurfacesCounterOutage(t *testing.T) {
	c := NewMemCounter()
	s := NewSequencer(c)
	ctx := context.Background()

	if _, err := s.Next(ctx, 1); err != nil {
		t.Fatalf("healthy Next: %v", err)
	}

	c.Fail(errors.New("connection refused"))
	_, err := s.Next(ctx, 1)
	if errs.Code(err) != errs.CodeSequenceGeneration {
		t.Fatalf("expected sequence-generation error, got %v", err)
	}
	if !errors.Is(err, errs.ErrSequenceGeneration) {
		t.Fatalf("error does not match sentinel: %v", err)
	}
}
