package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"PPChat/tools/errs"

	"github.com/google/uuid"
)

// Event 总线上传递的领域事件，Payload 为 JSON
type Event struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Key        string          `json:"key,omitempty"` // 分区/排序键
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// New 生成带 id 的事件
func New(kind, key string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, errs.WrapMsg(err, "encode event", "kind", kind)
	}
	return Event{ID: uuid.NewString(), Kind: kind, Key: key, OccurredAt: time.Now().UTC(), Payload: b}, nil
}

func Decode[T any](ev Event) (T, error) {
	var v T
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		return v, errs.WrapMsg(err, "decode event", "kind", ev.Kind, "id", ev.ID)
	}
	return v, nil
}

type Handler func(ctx context.Context, ev Event) error

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Subscriber interface {
	// Subscribe 按 kind 订阅；以 "." 结尾表示前缀匹配
	Subscribe(kind string, h Handler) error
}

// Bus 各实现（内存/NATS/Kafka）共用的生命周期
type Bus interface {
	Publisher
	Subscriber
	Start(ctx context.Context) error
	Close() error
}

func Match(pattern, kind string) bool {
	if strings.HasSuffix(pattern, ".") {
		return strings.HasPrefix(kind, pattern)
	}
	return pattern == kind || pattern == "*"
}

type route struct {
	pattern string
	h       Handler
}

// Router kind -> handlers；各总线实现收到消息后交给它分发
type Router struct {
	mu     sync.RWMutex
	routes []route
}

func (r *Router) Add(pattern string, h Handler) error {
	if pattern == "" || h == nil {
		return errs.New("invalid subscription", "kind", pattern)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{pattern: pattern, h: h})
	return nil
}

// Patterns 去重后的订阅模式，按登记顺序
func (r *Router) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.routes))
	out := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		if _, ok := seen[rt.pattern]; ok {
			continue
		}
		seen[rt.pattern] = struct{}{}
		out = append(out, rt.pattern)
	}
	return out
}

// HandlersFor 以该模式登记的 handler
func (r *Router) HandlersFor(pattern string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Handler
	for _, rt := range r.routes {
		if rt.pattern == pattern {
			out = append(out, rt.h)
		}
	}
	return out
}

// Dispatch 依次调用匹配的 handler，返回第一个错误
func (r *Router) Dispatch(ctx context.Context, ev Event) error {
	r.mu.RLock()
	hs := make([]Handler, 0, len(r.routes))
	for _, rt := range r.routes {
		if Match(rt.pattern, ev.Kind) {
			hs = append(hs, rt.h)
		}
	}
	r.mu.RUnlock()

	var first error
	for _, h := range hs {
		if err := h(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
