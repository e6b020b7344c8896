package kafka

import (
	"context"
	"encoding/json"

	"PPChat/logger"
	"PPChat/service/events"
	"PPChat/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// toProducerMessage Key 优先用事件 Key（会话 id），保证同一会话进同一分区
func toProducerMessage(topic string, ev events.Event) (*sarama.ProducerMessage, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, errs.WrapMsg(err, "encode event", "id", ev.ID)
	}
	key := ev.Key
	if key == "" {
		key = ev.ID
	}
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerKind), Value: []byte(ev.Kind)},
			{Key: []byte(headerID), Value: []byte(ev.ID)},
		},
	}, nil
}

// Publish 同步发送，等 WaitForAll
func (b *KafkaBus) Publish(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := toProducerMessage(b.cfg.Topic, ev)
	if err != nil {
		return err
	}
	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		return errs.WrapMsg(err, "kafka send", "topic", b.cfg.Topic, "id", ev.ID)
	}
	logger.Debug("kafka event sent",
		zap.String("kind", ev.Kind), zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}
