package kafka

import (
	"fmt"

	"ChatPipe/logger"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopics creates the given topics when absent. Partition counts are
// never reduced; Kafka only supports growing them.
func EnsureTopics(admin sarama.ClusterAdmin, topics []string) error {
	for _, t := range topics {
		desc, err := admin.DescribeTopics([]string{t})
		if err == nil && len(desc) == 1 && desc[0].Err == sarama.ErrNoError {
			logger.Info("topic exists", zap.String("topic", t), zap.Int("partitions", len(desc[0].Partitions)))
			continue
		}
		td := &sarama.TopicDetail{
			NumPartitions:     Cfg.PartitionsPerTopic,
			ReplicationFactor: Cfg.ReplicationFactor,
			ConfigEntries: map[string]*string{
				"cleanup.policy":                 strPtr("delete"),
				"min.insync.replicas":            strPtr("1"),
				"unclean.leader.election.enable": strPtr("false"),
				"compression.type":               strPtr("producer"),
			},
		}
		if err := admin.CreateTopic(t, td, false); err != nil {
			if err == sarama.ErrTopicAlreadyExists {
				logger.Info("topic exists (race)", zap.String("topic", t))
				continue
			}
			return fmt.Errorf("create topic %s: %w", t, err)
		}
		logger.Info("topic created",
			zap.String("topic", t),
			zap.Int32("partitions", Cfg.PartitionsPerTopic),
			zap.Int16("rf", Cfg.ReplicationFactor))
	}
	return nil
}

func strPtr(s string) *string { return &s }
