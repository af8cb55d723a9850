package seq

import (
	"context"
	"sync"
)

// MemCounter is an in-process CounterStore for tests and local runs.
type MemCounter struct {
	mu   sync.Mutex
	vals map[int64]int64
	err  error
}

func NewMemCounter() *MemCounter {
	return &MemCounter{vals: make(map[int64]int64)}
}

// Fail makes every subsequent Next return err (outage simulation).
func (m *MemCounter) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MemCounter) Next(_ context.Context, channelID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.vals[channelID]++
	return m.vals[channelID], nil
}
