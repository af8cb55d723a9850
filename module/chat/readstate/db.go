package readstate

import (
	"context"
	"time"
)

// Receipt is the durable row, one per (user, channel). LastRead is
// monotonically non-decreasing for the row's lifetime: greatest-wins by
// value, not by arrival time.
type Receipt struct {
	UserID    string
	ChannelID int64
	LastRead  string
	UpdatedAt time.Time
}

// Store abstracts the durable read-receipt table. Postgres in db_pg.go,
// in-memory in db_mem.go.
type Store interface {
	// UpsertGreatest applies one batch with the conditional merge: a row is
	// inserted if absent, updated only if the incoming value is >= the stored
	// value (lexicographic, which equals chronological for timestamp ids),
	// otherwise left untouched. All-or-nothing per call.
	UpsertGreatest(ctx context.Context, rows []Receipt) error

	Get(ctx context.Context, userID string, channelID int64) (string, bool, error)

	// SelectStale returns rows whose updated_at is older than cutoff, for the
	// reconciliation sweep.
	SelectStale(ctx context.Context, cutoff time.Time, limit int) ([]Receipt, error)
}

// MarkerStore is the fast-path key-value view consumed by this package; the
// Redis implementation lives in service/storage.
type MarkerStore interface {
	Set(ctx context.Context, userID string, channelID int64, timestampID string) error
	Get(ctx context.Context, userID string, channelID int64) (string, bool, error)
}
