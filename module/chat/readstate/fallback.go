package readstate

import (
	"context"
	"sync"
	"time"

	"ChatPipe/logger"
	"ChatPipe/metrics"

	"go.uber.org/zap"
)

// FallbackQueue buffers events in-process while the durable queue is
// unreachable and retries them on a fixed interval in arrival order. It is
// volatile on purpose: a restart loses the buffer, the fast-path marker
// already holds the effect and the sweep repairs the durable store later.
type FallbackQueue struct {
	mu  sync.Mutex
	buf []Event

	queue    QueuePublisher
	max      int
	interval time.Duration
}

func NewFallbackQueue(queue QueuePublisher, max int, interval time.Duration) *FallbackQueue {
	if max <= 0 {
		max = 10_000
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &FallbackQueue{queue: queue, max: max, interval: interval}
}

// Add appends an event; on overflow the oldest entry is dropped and counted.
func (q *FallbackQueue) Add(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) >= q.max {
		q.buf = q.buf[1:]
		metrics.FallbackDropped.Inc()
	}
	q.buf = append(q.buf, ev)
	metrics.FallbackBuffered.Set(float64(len(q.buf)))
}

func (q *FallbackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Flush retries buffered events in arrival order, stopping at the first
// failure. The buffer is swapped out under the lock and published outside it,
// so a stalled broker call never blocks concurrent Adds from the request
// path; unsent events are put back at the front for the next tick.
func (q *FallbackQueue) Flush() (int, error) {
	q.mu.Lock()
	if len(q.buf) == 0 {
		q.mu.Unlock()
		return 0, nil
	}
	pending := q.buf
	q.buf = nil
	metrics.FallbackBuffered.Set(0)
	q.mu.Unlock()

	n := 0
	for i, ev := range pending {
		if err := q.queue.Enqueue(ev); err != nil {
			q.requeue(pending[i:])
			return n, err
		}
		n++
		metrics.ReadEventsQueued.Inc()
	}
	return n, nil
}

// requeue puts unsent events back ahead of anything added meanwhile; they
// arrived earlier. Overflow still drops the oldest.
func (q *FallbackQueue) requeue(evs []Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = append(append([]Event(nil), evs...), q.buf...)
	if over := len(q.buf) - q.max; over > 0 {
		q.buf = q.buf[over:]
		metrics.FallbackDropped.Add(float64(over))
	}
	metrics.FallbackBuffered.Set(float64(len(q.buf)))
}

// Run is the periodic retry task; cancellable at tick boundaries.
func (q *FallbackQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.Flush()
			if n > 0 {
				logger.Info("fallback queue drained", zap.Int("events", n))
			}
			if err != nil {
				logger.Debug("read-state queue still unreachable", zap.Error(err))
			}
		}
	}
}
