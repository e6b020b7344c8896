package natsx

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"PPChat/global/config"
	"PPChat/logger"
	"PPChat/service/events"
	"PPChat/tools/errs"

	"go.uber.org/zap"
)

const (
	headerKind = "Kind"
	idemTTL    = 10 * time.Minute
)

// NatsManager 统一门面，实现 events.Bus
// subject = <prefix>.<kind>，订阅前缀 "message." 映射为 <prefix>.message.>
type NatsManager struct {
	client   *NatsxClient
	producer *NatsxProducer
	consumer *NatsxConsumer

	prefix  string
	mode    NatsxMode
	queue   string
	durable string
	ackWait time.Duration

	mu      sync.Mutex
	router  events.Router
	started bool
}

var _ events.Bus = (*NatsManager)(nil)

// NewNatsManager 连接并按配置初始化
func NewNatsManager(cfg config.NATSConfig, middlewares ...NatsxMiddleware) (*NatsManager, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	c, err := NewNatsxClient(NatsxConfig{
		Servers:  cfg.Servers,
		Name:     cfg.Name,
		User:     cfg.User,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, err
	}
	mws := append([]NatsxMiddleware{NatsxIdemMiddleware(NewMemIdem(idemTTL), idemTTL)}, middlewares...)
	prefix := strings.Trim(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "ppchat.events"
	}
	m := &NatsManager{
		client:   c,
		producer: NewNatsxProducer(c),
		consumer: NewNatsxConsumer(c, mws...),
		prefix:   prefix,
		mode:     mode,
		queue:    cfg.Queue,
		durable:  cfg.Durable,
		ackWait:  cfg.AckWait,
	}
	if mode == JetStreamPush {
		if err := c.EnsureStream(streamName(prefix), prefix+".>"); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return m, nil
}

// Close 释放资源（优雅关闭订阅与连接）
func (m *NatsManager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Publish 事件 JSON 整体作为消息体，事件 id 作为 Nats-Msg-Id
func (m *NatsManager) Publish(ctx context.Context, ev events.Event) error {
	biz := "pub:" + ev.Kind
	if _, ok := m.client.route(biz); !ok {
		if err := m.client.RegisterRoute(NatsxRoute{Biz: biz, Subject: m.subjectFor(ev.Kind), Mode: m.mode}); err != nil {
			return err
		}
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return errs.WrapMsg(err, "encode event", "id", ev.ID)
	}
	return m.producer.PublishOnce(ctx, biz, data, map[string]string{headerKind: ev.Kind}, ev.ID)
}

// Subscribe 登记 handler，Start 时统一建立订阅
func (m *NatsManager) Subscribe(kind string, h events.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errs.New("nats bus already started", "kind", kind)
	}
	return m.router.Add(kind, h)
}

// Start 每个订阅模式建立一个 NATS 订阅
func (m *NatsManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	for _, pattern := range m.router.Patterns() {
		biz := "sub:" + pattern
		route := NatsxRoute{
			Biz:     biz,
			Subject: m.subjectFor(pattern),
			Mode:    m.mode,
			Queue:   m.queue,
			AckWait: m.ackWait,
		}
		if m.mode == JetStreamPush && m.durable != "" {
			route.Durable = m.durable + "-" + sanitize(pattern)
		}
		if err := m.client.RegisterRoute(route); err != nil {
			return err
		}
		if err := m.consumer.Subscribe(ctx, biz, m.handle(pattern)); err != nil {
			return err
		}
		logger.Info("nats subscribed", zap.String("subject", route.Subject), zap.String("queue", route.Queue))
	}
	m.started = true
	return nil
}

// handle 解出事件并只分发给该订阅模式下的 handler
func (m *NatsManager) handle(pattern string) NatsxHandler {
	hs := m.router.HandlersFor(pattern)
	return func(ctx context.Context, msg NatsxMessage) error {
		var ev events.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			// 坏消息不重投
			logger.Warn("drop malformed event", zap.String("subject", msg.Subject), zap.Error(err))
			return nil
		}
		var first error
		for _, h := range hs {
			if err := h(ctx, ev); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}

func (m *NatsManager) subjectFor(kind string) string {
	return subjectFor(m.prefix, kind)
}

func subjectFor(prefix, kind string) string {
	switch {
	case kind == "*":
		return prefix + ".>"
	case strings.HasSuffix(kind, "."):
		return prefix + "." + kind + ">"
	default:
		return prefix + "." + kind
	}
}

func streamName(prefix string) string {
	return strings.ToUpper(sanitize(prefix))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, strings.TrimSuffix(s, "."))
}
