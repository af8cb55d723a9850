package readstate

import (
	"context"
	"strings"
	"time"

	"ChatPipe/logger"
	"ChatPipe/metrics"
	"ChatPipe/module/chat/event"
	errs "ChatPipe/tools/errs"

	"go.uber.org/zap"
)

// BizBroadcast mirrors the message path's bus route.
const BizBroadcast = "broadcast"

// BusPublisher is the fire-and-forget broadcast side.
type BusPublisher interface {
	Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error
}

// QueuePublisher hands an event to the durable read-state queue.
type QueuePublisher interface {
	Enqueue(ev Event) error
}

// Service is the read-state fast path. An update touches three surfaces:
// the fast-path marker (immediately), the broadcast bus (immediately,
// best-effort) and the durable queue (asynchronously, with the fallback
// buffer as the safety net). It never blocks on the durable store.
type Service struct {
	markers  MarkerStore
	store    Store
	bus      BusPublisher
	queue    QueuePublisher
	fallback *FallbackQueue
}

func NewService(markers MarkerStore, store Store, bus BusPublisher, queue QueuePublisher, fallback *FallbackQueue) *Service {
	return &Service{markers: markers, store: store, bus: bus, queue: queue, fallback: fallback}
}

// UpdateReadPosition moves the user's last-read position. An empty timestamp
// skips all three steps; there is no partial effect.
func (s *Service) UpdateReadPosition(ctx context.Context, userID string, channelID int64, timestampID string) error {
	if strings.TrimSpace(timestampID) == "" {
		return nil
	}
	if userID == "" || channelID <= 0 {
		return errs.ErrInvalidArgument.WithDetail("user/channel id")
	}

	// 1) Fast-path marker, last-write-wins, no ordering check at this layer.
	if err := s.markers.Set(ctx, userID, channelID, timestampID); err != nil {
		logger.Error("read marker write failed",
			zap.String("user", userID), zap.Int64("channel", channelID), zap.Error(err))
	}

	// 2) Broadcast, best-effort. A failed encode or publish is counted and
	// logged; the marker and the durable path are unaffected.
	raw, err := event.Marshal(event.KindReadUpdate, event.ReadPayload{
		UserID: userID, ChannelID: channelID, TimestampID: timestampID,
	})
	if err != nil {
		metrics.BroadcastPublishFailures.Inc()
		logger.Error("read broadcast encode failed",
			zap.String("user", userID), zap.Int64("channel", channelID), zap.Error(err))
	} else if err := s.bus.Publish(ctx, BizBroadcast, raw, nil); err != nil {
		metrics.BroadcastPublishFailures.Inc()
		logger.Warn("read broadcast failed", zap.Error(err))
	}

	// 3) Durable queue; the fallback buffer captures a broker outage.
	ev := Event{
		UserID:      userID,
		ChannelID:   channelID,
		TimestampID: timestampID,
		CreatedAtMS: time.Now().UnixMilli(),
	}
	if err := s.queue.Enqueue(ev); err != nil {
		logger.Warn("read-state queue unreachable, buffering",
			zap.String("key", ev.Key()), zap.Error(err))
		s.fallback.Add(ev)
		return nil
	}
	metrics.ReadEventsQueued.Inc()
	return nil
}

// GetReadPosition reads the fast-path marker; on a miss it falls back to the
// durable store and repopulates the marker (the marker is a cache).
func (s *Service) GetReadPosition(ctx context.Context, userID string, channelID int64) (string, bool, error) {
	if userID == "" || channelID <= 0 {
		return "", false, errs.ErrInvalidArgument.WithDetail("user/channel id")
	}
	if v, ok, err := s.markers.Get(ctx, userID, channelID); err == nil && ok {
		return v, true, nil
	} else if err != nil {
		logger.Warn("read marker lookup failed", zap.Error(err))
	}

	v, ok, err := s.store.Get(ctx, userID, channelID)
	if err != nil || !ok {
		return "", false, err
	}
	if err := s.markers.Set(ctx, userID, channelID, v); err != nil {
		logger.Warn("read marker repopulate failed", zap.Error(err))
	}
	return v, true, nil
}
