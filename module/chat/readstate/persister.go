package readstate

import (
	"context"

	"ChatPipe/logger"
	"ChatPipe/metrics"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Persister drains the durable queue in batches and applies them to the
// durable store with the conditional merge. A batch is all-or-nothing: the
// consumer acknowledges it only after the bulk upsert succeeds.
type Persister struct {
	store Store
}

func NewPersister(store Store) *Persister { return &Persister{store: store} }

// Dedup keeps, per (user, channel) key, the event with the lexicographically
// greatest timestamp (lexicographic order equals chronological order for
// timestamp ids). Arrival order within the batch is irrelevant.
func Dedup(events []Event) []Receipt {
	best := make(map[string]Event, len(events))
	order := make([]string, 0, len(events))
	for _, ev := range events {
		k := ev.Key()
		cur, ok := best[k]
		if !ok {
			best[k] = ev
			order = append(order, k)
			continue
		}
		if ev.TimestampID > cur.TimestampID {
			best[k] = ev
		}
	}
	rows := make([]Receipt, 0, len(best))
	for _, k := range order {
		ev := best[k]
		rows = append(rows, Receipt{UserID: ev.UserID, ChannelID: ev.ChannelID, LastRead: ev.TimestampID})
	}
	return rows
}

// ApplyEvents dedups and bulk-upserts one batch.
func (p *Persister) ApplyEvents(ctx context.Context, events []Event) error {
	rows := Dedup(events)
	if len(rows) == 0 {
		return nil
	}
	if err := p.store.UpsertGreatest(ctx, rows); err != nil {
		metrics.PersistBatches.WithLabelValues("error").Inc()
		return err
	}
	metrics.PersistBatches.WithLabelValues("ok").Inc()
	metrics.PersistEvents.Add(float64(len(rows)))
	return nil
}

// HandleBatch adapts ApplyEvents to the queue consumer. Undecodable records
// are logged and skipped; they can never succeed on redelivery.
func (p *Persister) HandleBatch(ctx context.Context, msgs []*sarama.ConsumerMessage) error {
	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		ev, err := DecodeEvent(m.Value)
		if err != nil {
			logger.Error("undecodable read event dropped",
				zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return p.ApplyEvents(ctx, events)
}
