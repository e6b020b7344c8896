package kafka

import (
	"context"
	"encoding/json"
	"time"

	"PPChat/logger"
	"PPChat/service/events"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

const (
	maxHandleAttempts = 3
	retryBackoff      = 200 * time.Millisecond
)

type groupHandler struct {
	router *events.Router
}

func (h *groupHandler) Setup(s sarama.ConsumerGroupSession) error {
	logger.Debug("kafka group setup", zap.String("member", s.MemberID()), zap.Int32("generation", s.GenerationID()))
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		handleMessage(session.Context(), h.router, msg)
		session.MarkMessage(msg, "")
	}
	return nil
}

// handleMessage 有限次重试；下游都是幂等的，失败最终只记日志并提交位点
func handleMessage(ctx context.Context, router *events.Router, msg *sarama.ConsumerMessage) {
	var ev events.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		logger.Warn("drop malformed event",
			zap.String("topic", msg.Topic), zap.Int32("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}
	if ev.Kind == "" {
		ev.Kind = headerValue(msg.Headers, headerKind)
	}
	var err error
	for attempt := 1; attempt <= maxHandleAttempts; attempt++ {
		if err = router.Dispatch(ctx, ev); err == nil {
			return
		}
		if attempt < maxHandleAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
	}
	logger.Error("kafka event handling failed",
		zap.String("id", ev.ID), zap.String("kind", ev.Kind), zap.Int64("offset", msg.Offset), zap.Error(err))
}

func headerValue(hs []*sarama.RecordHeader, key string) string {
	for _, h := range hs {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
