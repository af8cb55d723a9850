package message

import (
	"context"
	"time"

	"ChatPipe/logger"
	"ChatPipe/metrics"
	"ChatPipe/module/chat/event"
	"ChatPipe/module/chat/seq"
	errs "ChatPipe/tools/errs"
	"ChatPipe/tools/ids"
	"ChatPipe/tools/safe"

	"go.uber.org/zap"
)

// BizBroadcast is the bus route every gateway instance subscribes to.
const BizBroadcast = "broadcast"

// BusPublisher is the fire-and-forget side of the broadcast bus.
type BusPublisher interface {
	Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error
}

// SubmitResult is returned to the accepting gateway.
type SubmitResult struct {
	MsgID       string
	Seq         int64
	TimestampID string
}

// Service is the message ingestion path. Per inbound message it runs
// RECEIVED -> SEQUENCED -> PERSISTED -> PUBLISHED; the first two transitions
// abort the whole operation on failure, the last one is best-effort.
type Service struct {
	db   DB
	seqr *seq.Sequencer
	tsid *seq.TimestampIDGen
	bus  BusPublisher
}

func NewService(db DB, seqr *seq.Sequencer, tsid *seq.TimestampIDGen, bus BusPublisher) *Service {
	return &Service{db: db, seqr: seqr, tsid: tsid, bus: bus}
}

// SubmitMessage assigns ordering, persists the message row, then publishes
// it to the bus. A persistence failure after sequencing leaves a permanent
// gap in the channel's sequence space; the gap is counted, not healed.
func (s *Service) SubmitMessage(ctx context.Context, channelID int64, authorID, content, parentID string) (*SubmitResult, error) {
	if channelID <= 0 {
		return nil, errs.ErrInvalidArgument.WithDetail("channel id must be positive")
	}
	if authorID == "" {
		return nil, errs.ErrInvalidArgument.WithDetail("author id empty")
	}

	ok, err := s.db.ChannelExists(ctx, channelID)
	if err != nil {
		return nil, errs.Wrap(err, "channel lookup")
	}
	if !ok {
		return nil, errs.ErrChannelNotFound
	}

	// RECEIVED -> SEQUENCED. Sequencer failures abort; never fabricate.
	seqNo, err := s.seqr.Next(ctx, channelID)
	if err != nil {
		return nil, err
	}

	m := &Message{
		ID:          ids.GenerateString(),
		ChannelID:   channelID,
		AuthorID:    authorID,
		ParentID:    parentID,
		Content:     content,
		Seq:         seqNo,
		TimestampID: s.tsid.Next(),
		CreatedAt:   time.Now().UTC(),
	}

	// SEQUENCED -> PERSISTED. On failure the sequence stays consumed.
	if err := s.db.InsertMessage(ctx, m); err != nil {
		metrics.MessagePersistFailures.Inc()
		return nil, errs.Wrap(err, "persist message")
	}
	metrics.MessagesSubmitted.Inc()

	// PERSISTED -> PUBLISHED. Fire-and-forget: the durable row is the source
	// of truth, a missed broadcast is recovered by the catch-up query.
	safe.Go(func() {
		if err := s.publishNew(context.Background(), m); err != nil {
			metrics.BroadcastPublishFailures.Inc()
			logger.Error("broadcast publish failed",
				zap.Int64("channel", m.ChannelID), zap.Int64("seq", m.Seq), zap.Error(err))
		}
		s.notifyUnread(context.Background(), m)
	})

	return &SubmitResult{MsgID: m.ID, Seq: m.Seq, TimestampID: m.TimestampID}, nil
}

// publishNew serializes and publishes the new-message event. A serialization
// failure aborts the publish and is surfaced; the persisted record is
// unaffected.
func (s *Service) publishNew(ctx context.Context, m *Message) error {
	raw, err := event.Marshal(event.KindMessageNew, event.MessagePayload{
		MsgID:       m.ID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.AuthorID,
		ParentID:    m.ParentID,
		Content:     m.Content,
		Seq:         m.Seq,
		TimestampID: m.TimestampID,
		CreatedAtMS: m.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return errs.Wrap(err, "encode broadcast")
	}
	return s.bus.Publish(ctx, BizBroadcast, raw, nil)
}

// notifyUnread nudges unread counters for the other channel members.
func (s *Service) notifyUnread(ctx context.Context, m *Message) {
	members, err := s.db.ChannelMembers(ctx, m.ChannelID)
	if err != nil {
		logger.Warn("membership lookup failed", zap.Int64("channel", m.ChannelID), zap.Error(err))
		return
	}
	for _, uid := range members {
		if uid == m.AuthorID {
			continue
		}
		raw, err := event.Marshal(event.KindUnreadCount, event.UnreadPayload{
			UserID: uid, ChannelID: m.ChannelID,
		})
		if err != nil {
			continue
		}
		if err := s.bus.Publish(ctx, BizBroadcast, raw, nil); err != nil {
			metrics.BroadcastPublishFailures.Inc()
		}
	}
}

// MessagesAfter is the reconnect catch-up: resend everything after seq N.
func (s *Service) MessagesAfter(ctx context.Context, channelID int64, afterSeq int64, limit int) ([]*Message, error) {
	if channelID <= 0 {
		return nil, errs.ErrInvalidArgument.WithDetail("channel id must be positive")
	}
	return s.db.MessagesAfter(ctx, channelID, afterSeq, limit)
}
