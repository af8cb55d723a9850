package message

import (
	"context"
	"time"
)

// Message is immutable once created. Two ordering fields coexist: the
// per-channel sequence (strictly increasing across all writer instances) and
// the chronologically sortable timestamp identifier.
type Message struct {
	ID          string
	ChannelID   int64
	AuthorID    string
	ParentID    string // thread parent, empty for top-level
	Content     string
	Seq         int64
	TimestampID string
	CreatedAt   time.Time
}

// DB abstracts the durable message store. Production implementation is
// Postgres (db_pg.go); db_mem.go is the in-memory version.
type DB interface {
	ChannelExists(ctx context.Context, channelID int64) (bool, error)
	ChannelMembers(ctx context.Context, channelID int64) ([]string, error)

	InsertMessage(ctx context.Context, m *Message) error
	// MessagesAfter serves the reconnect catch-up query: everything in the
	// channel with seq > afterSeq, in sequence order.
	MessagesAfter(ctx context.Context, channelID int64, afterSeq int64, limit int) ([]*Message, error)
	QueryMaxSeq(ctx context.Context, channelID int64) (int64, error)
}
