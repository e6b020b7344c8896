package natsx

import (
	"context"
	"strings"
	"sync"
	"time"

	"PPChat/logger"

	"go.uber.org/zap"
)

// IdemStore 幂等存储
type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

// 内存实现（单进程），写入时顺带清理过期 key
type memIdem struct {
	mu        sync.Mutex
	m         map[string]time.Time // key -> 过期时间
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewMemIdem(defaultTTL time.Duration) IdemStore {
	return &memIdem{m: make(map[string]time.Time), ttl: defaultTTL, now: time.Now}
}

func (mi *memIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if now.Sub(mi.lastSweep) > time.Minute {
		for k, exp := range mi.m {
			if !exp.After(now) {
				delete(mi.m, k)
			}
		}
		mi.lastSweep = now
	}
	if exp, ok := mi.m[key]; ok && exp.After(now) {
		return true, nil
	}
	mi.m[key] = now.Add(ttl)
	return false, nil
}

// msgIDFromHeader 标准头 Nats-Msg-Id，兼容 X-Msg-Id
func msgIDFromHeader(h map[string]string) string {
	for _, k := range []string{HeaderMsgID, "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := h[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// NatsxIdemMiddleware 同一 msgID 在 ttl 内只处理一次
func NatsxIdemMiddleware(store IdemStore, ttl time.Duration) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			id := msgIDFromHeader(msg.Header)
			if id == "" {
				// 无 ID 时用 subject+内容凑一个弱 ID
				id = msg.Subject + "|" + strings.TrimSpace(string(msg.Data))
			}
			seen, err := store.SeenOnce(id, ttl)
			if err != nil {
				logger.Warn("idem store failed", zap.String("id", id), zap.Error(err))
			}
			if seen {
				logger.Debug("duplicate message skipped", zap.String("id", id))
				return nil
			}
			return next(ctx, msg)
		}
	}
}
