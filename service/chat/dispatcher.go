package chat

import (
	"context"
	"encoding/json"
	"sync"

	"PPChat/tools/errs"
)

// Dispatcher 事件名 -> Handler
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(hs ...Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range hs {
		d.handlers[h.Event()] = h
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, event string, data json.RawMessage) error {
	d.mu.RLock()
	h, ok := d.handlers[event]
	d.mu.RUnlock()
	if !ok {
		return errs.Validation("Unknown event: " + event)
	}
	return h.Handle(ctx, s, data)
}
