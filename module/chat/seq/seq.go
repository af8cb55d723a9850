package seq

import (
	"context"
	"fmt"

	errs "ChatPipe/tools/errs"
)

// CounterStore is the shared per-channel sequence counter. Next must be an
// atomic server-side increment-and-get; there is no decrement.
type CounterStore interface {
	Next(ctx context.Context, channelID int64) (int64, error)
}

// Sequencer issues the per-channel sequence number for new messages. Values
// are strictly increasing for a channel across all writer instances.
type Sequencer struct {
	Counter CounterStore
}

func NewSequencer(c CounterStore) *Sequencer {
	return &Sequencer{Counter: c}
}

// Next returns the next sequence for the channel. A counter-store failure is
// surfaced as SequenceGenerationError; callers must fail the write rather
// than substitute a value.
func (s *Sequencer) Next(ctx context.Context, channelID int64) (int64, error) {
	if channelID <= 0 {
		return 0, errs.ErrInvalidArgument.WithDetail(fmt.Sprintf("channel id %d", channelID))
	}
	v, err := s.Counter.Next(ctx, channelID)
	if err != nil {
		return 0, errs.WrapCode(errs.ErrSequenceGeneration, err)
	}
	if v <= 0 {
		return 0, errs.ErrSequenceGeneration.WithDetail("counter returned no value")
	}
	return v, nil
}
