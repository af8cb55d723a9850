package kafka

import (
	"fmt"

	"github.com/Shopify/sarama"
)

// SendKeyed publishes one record; the hash partitioner maps the key to a
// stable partition so per-key submission order is preserved.
func SendKeyed(topic, key string, value []byte) error {
	if Producer == nil {
		return fmt.Errorf("producer not initialized")
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	_, _, err := Producer.SendMessage(msg)
	return err
}
