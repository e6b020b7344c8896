package natsx

import (
	"context"

	"PPChat/logger"
	"PPChat/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func newMsg(subject string, data []byte, hdr map[string]string) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Set(k, v)
	}
	return msg
}

func (c *NatsxClient) sendCore(subject string, data []byte, hdr map[string]string) error {
	if err := c.nc.PublishMsg(newMsg(subject, data, hdr)); err != nil {
		return errs.WrapMsg(err, "nats publish", "subject", subject)
	}
	return nil
}

// sendJS 等待 stream ack；Nats-Msg-Id 相同的消息在去重窗口内只存一次
func (c *NatsxClient) sendJS(ctx context.Context, subject string, data []byte, hdr map[string]string) error {
	ack, err := c.js.PublishMsg(newMsg(subject, data, hdr), nats.Context(ctx))
	if err != nil {
		return errs.WrapMsg(err, "jetstream publish", "subject", subject)
	}
	logger.Debug("jetstream published",
		zap.String("stream", ack.Stream), zap.Uint64("seq", ack.Sequence), zap.Bool("duplicate", ack.Duplicate))
	return nil
}
