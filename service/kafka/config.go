package kafka

import (
	"strings"
	"time"

	"PPChat/global/config"
	"PPChat/tools/errs"

	"github.com/Shopify/sarama"
)

const (
	headerKind = "kind"
	headerID   = "id"
)

// BuildConfig 生产者/消费组共用的 sarama 配置
func BuildConfig(c config.KafkaConfig) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, errs.WrapMsg(err, "parse kafka version", "version", c.Version)
		}
		cfg.Version = v
	} else {
		cfg.Version = sarama.V2_1_0_0
	}
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = false
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // Key 决定分区，同一会话有序
	switch strings.ToLower(c.Compression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	case "gzip":
		cfg.Producer.Compression = sarama.CompressionGZIP
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Consumer
	switch strings.ToLower(c.InitialOffset) {
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

	if err := cfg.Validate(); err != nil {
		return nil, errs.WrapMsg(err, "invalid kafka config")
	}
	return cfg, nil
}
