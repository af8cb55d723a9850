package seq

import (
	"strings"
	"sync"
	"testing"
)

func TestTimestampIDSameMillisecond(t *testing.T) {
	g := NewTimestampIDGenWithClock(func() int64 { return 1_700_000_000_000 })

	a := g.Next()
	b := g.Next()
	c := g.Next()

	if a != "1700000000000.000000" {
		t.Fatalf("first id = %q", a)
	}
	if b != "1700000000000.000001" || c != "1700000000000.000002" {
		t.Fatalf("counter did not increment: %q %q", b, c)
	}
	if !(a < b && b < c) {
		t.Fatalf("ids not lexicographically ordered: %q %q %q", a, b, c)
	}
}

func TestTimestampIDCounterOverflowRollsForward(t *testing.T) {
	now := int64(1_700_000_000_000)
	calls := 0
	g := NewTimestampIDGenWithClock(func() int64 {
		calls++
		// Advance the clock only once the overflow spin starts polling.
		if calls > MaxIntraMillis+2 {
			return now + 1
		}
		return now
	})

	var last string
	for i := int64(0); i <= MaxIntraMillis; i++ {
		last = g.Next()
	}
	if !strings.HasSuffix(last, ".999999") {
		t.Fatalf("expected counter at max, got %q", last)
	}

	next := g.Next()
	if !strings.HasPrefix(next, "1700000000001.") || !strings.HasSuffix(next, ".000000") {
		t.Fatalf("expected roll into next millisecond, got %q", next)
	}
	if next <= last {
		t.Fatalf("order broken across overflow: %q then %q", last, next)
	}
}

func TestTimestampIDBackwardClockSpins(t *testing.T) {
	times := []int64{2000, 1500, 1500, 2001}
	i := 0
	g := NewTimestampIDGenWithClock(func() int64 {
		v := times[i]
		if i < len(times)-1 {
			i++
		}
		return v
	})

	a := g.Next() // observes 2000
	b := g.Next() // must spin past the 1500 readings
	if a != "2000.000000" {
		t.Fatalf("first id = %q", a)
	}
	if b != "2001.000000" {
		t.Fatalf("expected spin past backward clock, got %q", b)
	}
}

func TestTimestampIDConcurrentUnique(t *testing.T) {
	g := NewTimestampIDGen()

	const workers = 8
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				ids = append(ids, g.Next())
			}
			mu.Lock()
			for _, id := range ids {
				if seen[id] {
					t.Errorf("duplicate id %q", id)
				}
				seen[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d distinct ids, got %d", workers*perWorker, len(seen))
	}
}
