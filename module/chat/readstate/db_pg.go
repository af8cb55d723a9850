package readstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres read-receipt store (see scripts/schema.sql).
type PgStore struct {
	Pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore { return &PgStore{Pool: pool} }

func (s *PgStore) UpsertGreatest(ctx context.Context, rows []Receipt) error {
	if len(rows) == 0 {
		return nil
	}

	// One statement per batch; the WHERE clause leaves older values untouched
	// so re-applying the same batch is a no-op.
	var sb strings.Builder
	args := make([]any, 0, len(rows)*3)
	sb.WriteString(`INSERT INTO read_receipts (user_id, channel_id, last_read_timestamp, updated_at) VALUES `)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, now())", i*3+1, i*3+2, i*3+3)
		args = append(args, r.UserID, r.ChannelID, r.LastRead)
	}
	sb.WriteString(`
		ON CONFLICT (user_id, channel_id) DO UPDATE
		SET last_read_timestamp = EXCLUDED.last_read_timestamp,
		    updated_at = now()
		WHERE EXCLUDED.last_read_timestamp >= read_receipts.last_read_timestamp`)

	_, err := s.Pool.Exec(ctx, sb.String(), args...)
	return err
}

func (s *PgStore) Get(ctx context.Context, userID string, channelID int64) (string, bool, error) {
	var v string
	err := s.Pool.QueryRow(ctx,
		`SELECT last_read_timestamp FROM read_receipts WHERE user_id = $1 AND channel_id = $2`,
		userID, channelID).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (s *PgStore) SelectStale(ctx context.Context, cutoff time.Time, limit int) ([]Receipt, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT user_id, channel_id, last_read_timestamp, updated_at
		FROM read_receipts
		WHERE updated_at < $1
		ORDER BY updated_at
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		var r Receipt
		if err := rows.Scan(&r.UserID, &r.ChannelID, &r.LastRead, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
