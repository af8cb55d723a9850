package readstate

import (
	"context"
	"time"

	"ChatPipe/logger"
	"ChatPipe/metrics"

	"go.uber.org/zap"
)

// Sweeper audits durable rows that have not been touched recently against
// the fast-path marker and repairs divergence. It is a safety net fully
// independent of the queue path.
type Sweeper struct {
	store   Store
	markers MarkerStore

	interval  time.Duration
	staleness time.Duration
	limit     int
	now       func() time.Time
}

func NewSweeper(store Store, markers MarkerStore, interval, staleness time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleness <= 0 {
		staleness = 10 * time.Minute
	}
	return &Sweeper{
		store:     store,
		markers:   markers,
		interval:  interval,
		staleness: staleness,
		limit:     1000,
		now:       time.Now,
	}
}

// WithClock injects the clock; for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run executes the sweep on a fixed schedule until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			examined, fixed, err := s.SweepOnce(ctx)
			if err != nil {
				logger.Error("reconciliation sweep failed", zap.Error(err))
				continue
			}
			if fixed > 0 {
				logger.Info("reconciliation sweep repaired rows",
					zap.Int("examined", examined), zap.Int("fixed", fixed))
			}
		}
	}
}

// SweepOnce scans one page of stale rows. Rows whose marker is strictly
// newer are lifted to the marker value; rows without a marker are trusted
// as-is.
func (s *Sweeper) SweepOnce(ctx context.Context) (examined, fixed int, err error) {
	cutoff := s.now().Add(-s.staleness)
	rows, err := s.store.SelectStale(ctx, cutoff, s.limit)
	if err != nil {
		return 0, 0, err
	}

	var maxDivergence time.Duration
	for _, r := range rows {
		examined++
		metrics.SweepExamined.Inc()

		mv, ok, err := s.markers.Get(ctx, r.UserID, r.ChannelID)
		if err != nil {
			logger.Warn("marker lookup failed during sweep",
				zap.String("user", r.UserID), zap.Int64("channel", r.ChannelID), zap.Error(err))
			continue
		}
		if !ok || mv <= r.LastRead {
			continue
		}

		if err := s.store.UpsertGreatest(ctx, []Receipt{{
			UserID: r.UserID, ChannelID: r.ChannelID, LastRead: mv,
		}}); err != nil {
			logger.Error("sweep repair failed",
				zap.String("user", r.UserID), zap.Int64("channel", r.ChannelID), zap.Error(err))
			continue
		}
		fixed++
		metrics.SweepFixed.Inc()
		if age := s.now().Sub(r.UpdatedAt); age > maxDivergence {
			maxDivergence = age
		}
	}
	metrics.SweepMaxDivergence.Set(maxDivergence.Seconds())
	return examined, fixed, nil
}
