package readstate

import (
	"encoding/json"
	"fmt"
)

// Event is the transient, in-flight form of "user U has read up to T in
// channel C". It lives only on the queue and in in-process buffers; only its
// resolved effect is persisted.
type Event struct {
	UserID      string `json:"user_id"`
	ChannelID   int64  `json:"channel_id"`
	TimestampID string `json:"last_read"`
	CreatedAtMS int64  `json:"created_at_ms"`
}

// Key is the partition/grouping key: all events for one (user, channel) pair
// land in the same queue partition and are consumed in submission order.
func (e Event) Key() string {
	return fmt.Sprintf("%s:%d", e.UserID, e.ChannelID)
}

func (e Event) Encode() ([]byte, error) { return json.Marshal(e) }

// DecodeEvent rejects records that parse but carry no usable key or value;
// consumers treat them exactly like unparseable records.
func DecodeEvent(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, err
	}
	if e.UserID == "" || e.ChannelID <= 0 || e.TimestampID == "" {
		return Event{}, fmt.Errorf("incomplete read event %q", e.Key())
	}
	return e, nil
}
