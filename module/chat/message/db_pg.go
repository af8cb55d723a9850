package message

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgDB is the Postgres message store (see scripts/schema.sql).
type PgDB struct {
	Pool *pgxpool.Pool
}

func NewPgDB(pool *pgxpool.Pool) *PgDB { return &PgDB{Pool: pool} }

func (d *PgDB) ChannelExists(ctx context.Context, channelID int64) (bool, error) {
	var ok bool
	err := d.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM channels WHERE id = $1)`, channelID).Scan(&ok)
	return ok, err
}

func (d *PgDB) ChannelMembers(ctx context.Context, channelID int64) ([]string, error) {
	rows, err := d.Pool.Query(ctx,
		`SELECT user_id FROM channel_members WHERE channel_id = $1`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

func (d *PgDB) InsertMessage(ctx context.Context, m *Message) error {
	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, channel_id, author_id, parent_id, content,
		                      sequence_number, timestamp_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`,
		m.ID, m.ChannelID, m.AuthorID, m.ParentID, m.Content,
		m.Seq, m.TimestampID, m.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (d *PgDB) MessagesAfter(ctx context.Context, channelID int64, afterSeq int64, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := d.Pool.Query(ctx, `
		SELECT id, channel_id, author_id, COALESCE(parent_id, ''), content,
		       sequence_number, timestamp_id, created_at
		FROM messages
		WHERE channel_id = $1 AND sequence_number > $2
		ORDER BY sequence_number
		LIMIT $3`, channelID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.ParentID,
			&m.Content, &m.Seq, &m.TimestampID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (d *PgDB) QueryMaxSeq(ctx context.Context, channelID int64) (int64, error) {
	var max int64
	err := d.Pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE channel_id = $1`,
		channelID).Scan(&max)
	return max, err
}
