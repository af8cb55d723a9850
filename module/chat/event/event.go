package event

import "encoding/json"

// Broadcast kinds carried over the bus topic.
const (
	KindMessageNew  = "message.new"
	KindReadUpdate  = "read.update"
	KindUnreadCount = "unread.count"
)

// Envelope is the wire format of the broadcast bus. One well-known subject
// carries every kind; subscribers dispatch on Kind.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MessagePayload announces a newly persisted message to all instances.
type MessagePayload struct {
	MsgID       string `json:"msg_id"`
	ChannelID   int64  `json:"channel_id"`
	AuthorID    string `json:"author_id"`
	ParentID    string `json:"parent_id,omitempty"`
	Content     string `json:"content"`
	Seq         int64  `json:"seq"`
	TimestampID string `json:"timestamp_id"`
	CreatedAtMS int64  `json:"created_at_ms"`
}

// ReadPayload announces a read-position move.
type ReadPayload struct {
	UserID      string `json:"user_id"`
	ChannelID   int64  `json:"channel_id"`
	TimestampID string `json:"timestamp_id"`
}

// UnreadPayload nudges a member's unread counter for a channel.
type UnreadPayload struct {
	UserID    string `json:"user_id"`
	ChannelID int64  `json:"channel_id"`
}

// Marshal builds an envelope; a serialization failure aborts the publish.
func Marshal(kind string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: kind, Data: data})
}

// DecodeEnvelope parses the outer envelope.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Decode parses the inner payload into out.
func (e *Envelope) Decode(out any) error {
	return json.Unmarshal(e.Data, out)
}
