package seq

import (
	"fmt"
	"sync"
	"time"
)

// MaxIntraMillis is the largest intra-millisecond counter value; past it the
// generator spins into the next millisecond.
const MaxIntraMillis = 999_999

// TimestampIDGen emits per-channel-sortable identifiers of the form
// "{unix_millis}.{6-digit counter}". Lexicographic order equals chronological
// order (the millis part stays 13 digits wide until the year 2286).
//
// State is per process and guarded by one mutex: two calls within a process
// can never observe the same (millis, counter) pair. Two processes can: the
// identifier is unique per channel only as long as one writer process emits
// for that channel in a given millisecond. Known limitation; true global
// uniqueness would need a per-channel generator partition.
type TimestampIDGen struct {
	mu      sync.Mutex
	nowMS   func() int64
	lastMS  int64
	counter int64
}

func NewTimestampIDGen() *TimestampIDGen {
	return &TimestampIDGen{nowMS: func() int64 { return time.Now().UnixMilli() }}
}

// NewTimestampIDGenWithClock injects the clock; for tests.
func NewTimestampIDGenWithClock(nowMS func() int64) *TimestampIDGen {
	return &TimestampIDGen{nowMS: nowMS}
}

func (g *TimestampIDGen) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowMS()
	// Clock went backwards: spin until wall time passes the recorded value.
	for now < g.lastMS {
		now = g.nowMS()
	}
	if now == g.lastMS {
		g.counter++
		if g.counter > MaxIntraMillis {
			for now <= g.lastMS {
				now = g.nowMS()
			}
			g.lastMS = now
			g.counter = 0
		}
	} else {
		g.lastMS = now
		g.counter = 0
	}
	return FormatTimestampID(g.lastMS, g.counter)
}

func FormatTimestampID(millis, counter int64) string {
	return fmt.Sprintf("%d.%06d", millis, counter)
}
