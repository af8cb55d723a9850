package readstate

import (
	kafka "ChatPipe/service/kafka"
)

// KafkaQueue publishes events onto the partitioned read-state topic, keyed
// by (user, channel) so the hash partitioner preserves per-key order.
type KafkaQueue struct {
	Topic string
}

func (q KafkaQueue) Enqueue(ev Event) error {
	raw, err := ev.Encode()
	if err != nil {
		return err
	}
	return kafka.SendKeyed(q.Topic, ev.Key(), raw)
}
