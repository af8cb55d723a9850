package readstate

import (
	"context"

	"ChatPipe/logger"
	"ChatPipe/metrics"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Reconciler consumes the dead-letter topic. Instead of blindly replaying
// the dead-lettered value, it prefers the current fast-path marker, which is
// the freshest known truth, and applies it with the same conditional merge.
type Reconciler struct {
	store   Store
	markers MarkerStore
}

func NewReconciler(store Store, markers MarkerStore) *Reconciler {
	return &Reconciler{store: store, markers: markers}
}

// HandleBatch reconciles each dead-lettered event. Failures are counted and
// re-raised; the event is never silently swallowed.
func (r *Reconciler) HandleBatch(ctx context.Context, msgs []*sarama.ConsumerMessage) error {
	for _, m := range msgs {
		ev, err := DecodeEvent(m.Value)
		if err != nil {
			logger.Error("undecodable dead-letter event dropped",
				zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		if err := r.Reconcile(ctx, ev); err != nil {
			metrics.ReconcileFailure.Inc()
			return err
		}
		metrics.ReconcileSuccess.Inc()
	}
	return nil
}

// Reconcile persists the marker value when present, else the event's own
// value (the marker may have been evicted).
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) error {
	val := ev.TimestampID
	mv, ok, err := r.markers.Get(ctx, ev.UserID, ev.ChannelID)
	if err != nil {
		logger.Warn("marker lookup failed during reconcile, using event value",
			zap.String("key", ev.Key()), zap.Error(err))
	} else if ok {
		val = mv
	}
	return r.store.UpsertGreatest(ctx, []Receipt{{
		UserID: ev.UserID, ChannelID: ev.ChannelID, LastRead: val,
	}})
}
