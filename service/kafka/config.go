package kafka

import (
	"time"

	"github.com/Shopify/sarama"
)

// In-code configuration; main applies file overlays before Init.
type AppConfig struct {
	Brokers []string
	GroupID string

	// Read-state topic and its dead-letter sibling. Events are keyed by
	// (user, channel) so the hash partitioner pins each pair to one partition.
	Topic           string
	DeadLetterTopic string

	PartitionsPerTopic int32
	ReplicationFactor  int16

	ProducerRetries       int
	ProducerCompression   string // none/snappy/lz4/zstd
	ConsumerInitialOffset string // newest/oldest
	KafkaVersion          sarama.KafkaVersion

	AutoCreateTopicsOnStart bool

	// Batch persister tuning.
	BatchSize           int
	BatchFlush          time.Duration
	MaxDeliveryAttempts int
}

var Cfg = AppConfig{
	Brokers:                 []string{"127.0.0.1:9092"},
	GroupID:                 "chatpipe-readstate-1",
	Topic:                   "im.read-state",
	DeadLetterTopic:         "im.read-state.dlq",
	PartitionsPerTopic:      8,
	ReplicationFactor:       1,
	ProducerRetries:         5,
	ProducerCompression:     "snappy",
	ConsumerInitialOffset:   "oldest",
	KafkaVersion:            sarama.V2_1_0_0,
	AutoCreateTopicsOnStart: true,
	BatchSize:               500,
	BatchFlush:              500 * time.Millisecond,
	MaxDeliveryAttempts:     5,
}
