package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ChatPipe/logger"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// BatchHandler processes one bounded batch of records. The batch is
// all-or-nothing: offsets are marked only after the handler returns nil.
type BatchHandler func(ctx context.Context, msgs []*sarama.ConsumerMessage) error

// BatchGroupHandler drains a claim into bounded batches. A failed batch is
// not acknowledged; the claim is torn down so the group redelivers from the
// last mark. After MaxAttempts deliveries of the same batch head the records
// are routed to the dead-letter topic and the partition moves on.
type BatchGroupHandler struct {
	MaxBatch    int
	FlushEvery  time.Duration
	MaxAttempts int
	Handle      BatchHandler
	DeadLetter  func(msgs []*sarama.ConsumerMessage) error // nil disables dead-lettering

	mu       sync.Mutex
	attempts map[string]int // topic/partition/head-offset -> delivery count
}

func (h *BatchGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	logger.Info("batch consumer group setup")
	return nil
}

func (h *BatchGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Info("batch consumer group cleanup")
	return nil
}

func batchKey(m *sarama.ConsumerMessage) string {
	return fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
}

func (h *BatchGroupHandler) bumpAttempts(head *sarama.ConsumerMessage) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attempts == nil {
		h.attempts = make(map[string]int)
	}
	k := batchKey(head)
	h.attempts[k]++
	return h.attempts[k]
}

func (h *BatchGroupHandler) clearAttempts(head *sarama.ConsumerMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attempts, batchKey(head))
}

func (h *BatchGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	maxBatch := h.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 500
	}
	flushEvery := h.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 500 * time.Millisecond
	}
	maxAttempts := h.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	buf := make([]*sarama.ConsumerMessage, 0, maxBatch)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		err := h.Handle(sess.Context(), buf)
		if err == nil {
			for _, m := range buf {
				sess.MarkMessage(m, "")
			}
			h.clearAttempts(buf[0])
			buf = buf[:0]
			return nil
		}

		n := h.bumpAttempts(buf[0])
		logger.Error("batch persist failed",
			zap.String("topic", claim.Topic()),
			zap.Int32("partition", claim.Partition()),
			zap.Int64("head_offset", buf[0].Offset),
			zap.Int("attempt", n),
			zap.Error(err))

		if n >= maxAttempts && h.DeadLetter != nil {
			if dlErr := h.DeadLetter(buf); dlErr != nil {
				// Dead-letter path itself is down; keep redelivering.
				return fmt.Errorf("dead-letter route failed: %v (batch error: %w)", dlErr, err)
			}
			for _, m := range buf {
				sess.MarkMessage(m, "")
			}
			h.clearAttempts(buf[0])
			buf = buf[:0]
			return nil
		}
		// No ack: ending the claim triggers redelivery from the last mark.
		return err
	}

	for {
		select {
		case m, ok := <-claim.Messages():
			if !ok {
				return flush()
			}
			buf = append(buf, m)
			if len(buf) >= maxBatch {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case <-sess.Context().Done():
			return flush()
		}
	}
}

// StartBatchConsumerGroup runs the consumer group loop until ctx is done.
// Rebalance errors are logged and the loop re-joins.
func StartBatchConsumerGroup(ctx context.Context, brokers []string, groupID string, topics []string, handler sarama.ConsumerGroupHandler) error {
	group, err := sarama.NewConsumerGroup(brokers, groupID, BuildBaseConfig())
	if err != nil {
		return err
	}

	go func() {
		for err := range group.Errors() {
			logger.Error("consumer group error", zap.Error(err))
		}
	}()

	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			logger.Error("consume error", zap.Error(err))
			time.Sleep(time.Second)
		}
		if ctx.Err() != nil {
			return group.Close()
		}
	}
}
