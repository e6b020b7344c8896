package events

import "context"

// MemoryBus 进程内同步分发：Publish 返回时所有 handler 已执行完
type MemoryBus struct {
	router Router
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	return b.router.Dispatch(ctx, ev)
}

func (b *MemoryBus) Subscribe(kind string, h Handler) error {
	return b.router.Add(kind, h)
}

func (b *MemoryBus) Start(ctx context.Context) error { return nil }
func (b *MemoryBus) Close() error                    { return nil }
