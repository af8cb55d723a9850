package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

var (
	KafkaClient sarama.Client
	Producer    sarama.SyncProducer
)

func BuildBaseConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = Cfg.KafkaVersion

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if Cfg.ProducerRetries <= 0 {
		Cfg.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = Cfg.ProducerRetries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // key controls the partition
	switch strings.ToLower(Cfg.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Consumer
	switch strings.ToLower(Cfg.ConsumerInitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

func InitKafkaClient() error {
	cfg := BuildBaseConfig()
	c, err := sarama.NewClient(Cfg.Brokers, cfg)
	if err != nil {
		return err
	}
	KafkaClient = c
	return nil
}

func InitSyncProducerFromClient() error {
	p, err := sarama.NewSyncProducerFromClient(KafkaClient)
	if err != nil {
		return err
	}
	Producer = p
	return nil
}
