package kafka

import (
	"context"
	"errors"
	"sync"

	"PPChat/global/config"
	"PPChat/logger"
	"PPChat/service/events"
	"PPChat/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// KafkaBus 单 topic 事件总线：SyncProducer 发布，消费组分发到 Router
type KafkaBus struct {
	cfg      config.KafkaConfig
	saramaCf *sarama.Config
	client   sarama.Client
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup

	mu      sync.Mutex
	router  events.Router
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ events.Bus = (*KafkaBus)(nil)

// NewKafkaBus 建立 client 与同步生产者，按需创建 topic
func NewKafkaBus(c config.KafkaConfig) (*KafkaBus, error) {
	if len(c.Brokers) == 0 || c.Topic == "" {
		return nil, errs.New("kafka brokers and topic are required")
	}
	scfg, err := BuildConfig(c)
	if err != nil {
		return nil, err
	}
	client, err := sarama.NewClient(c.Brokers, scfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka client", "brokers", c.Brokers)
	}
	if c.EnsureTopic {
		if err := EnsureTopic(client, c.Topic, c.Partitions, c.Replication); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errs.WrapMsg(err, "kafka sync producer")
	}
	return &KafkaBus{cfg: c, saramaCf: scfg, client: client, producer: p}, nil
}

// Subscribe 登记 handler；消费组在 Start 时启动
func (b *KafkaBus) Subscribe(kind string, h events.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errs.New("kafka bus already started", "kind", kind)
	}
	return b.router.Add(kind, h)
}

// Start 没有订阅者时只作为生产者使用
func (b *KafkaBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	b.started = true
	if len(b.router.Patterns()) == 0 {
		return nil
	}
	group, err := sarama.NewConsumerGroupFromClient(b.cfg.GroupID, b.client)
	if err != nil {
		return errs.WrapMsg(err, "kafka consumer group", "group", b.cfg.GroupID)
	}
	b.group = group
	ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		for err := range group.Errors() {
			logger.Warn("kafka consumer group error", zap.Error(err))
		}
	}()
	go func() {
		defer b.wg.Done()
		h := &groupHandler{router: &b.router}
		for {
			// 重平衡后 Consume 返回，需要循环重新加入
			if err := group.Consume(ctx, []string{b.cfg.Topic}, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				logger.Warn("kafka consume failed", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	logger.Info("kafka consumer started", zap.String("topic", b.cfg.Topic), zap.String("group", b.cfg.GroupID))
	return nil
}

// Close 停消费 -> 关生产者 -> 关 client
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	var first error
	if b.group != nil {
		first = b.group.Close()
	}
	b.wg.Wait()
	if b.producer != nil {
		if err := b.producer.Close(); err != nil && first == nil {
			first = err
		}
	}
	if b.client != nil && !b.client.Closed() {
		if err := b.client.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
