package outbox

import (
	"context"
	"time"

	"PPChat/logger"
	msgmodel "PPChat/module/message/model"
	"PPChat/service/events"
	"PPChat/tools/errs"

	"go.uber.org/zap"
)

type Store interface {
	PendingOutbox(ctx context.Context, limit int) ([]msgmodel.OutboxEntry, error)
	MarkOutboxPublished(ctx context.Context, id string, at time.Time) error
	MarkOutboxFailed(ctx context.Context, id, lastErr string, final bool) error
}

type Options struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// Relay 轮询 outbox，把待投递事件发到总线。至少一次：消费方需幂等。
type Relay struct {
	store Store
	pub   events.Publisher
	opts  Options
	now   func() time.Time
}

func NewRelay(store Store, pub events.Publisher, opts Options) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Relay{store: store, pub: pub, opts: opts, now: time.Now}
}

// Run 阻塞直到 ctx 取消
func (r *Relay) Run(ctx context.Context) {
	t := time.NewTicker(r.opts.Interval)
	defer t.Stop()
	for {
		if _, err := r.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("outbox relay", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// ProcessPending 处理一批，返回成功投递数
func (r *Relay) ProcessPending(ctx context.Context) (int, error) {
	batch, err := r.store.PendingOutbox(ctx, r.opts.BatchSize)
	if err != nil {
		return 0, errs.WrapMsg(err, "load pending outbox")
	}
	sent := 0
	for _, e := range batch {
		ev := events.Event{ID: e.ID, Kind: e.Kind, Key: e.Key, OccurredAt: e.CreatedAt, Payload: e.Payload}
		if err := r.pub.Publish(ctx, ev); err != nil {
			final := e.Attempts+1 >= r.opts.MaxAttempts
			logger.Warn("outbox publish failed",
				zap.String("id", e.ID), zap.String("kind", e.Kind),
				zap.Int("attempt", e.Attempts+1), zap.Bool("final", final), zap.Error(err))
			if merr := r.store.MarkOutboxFailed(ctx, e.ID, err.Error(), final); merr != nil {
				return sent, errs.WrapMsg(merr, "mark outbox failed", "id", e.ID)
			}
			continue
		}
		if err := r.store.MarkOutboxPublished(ctx, e.ID, r.now().UTC()); err != nil {
			return sent, errs.WrapMsg(err, "mark outbox published", "id", e.ID)
		}
		sent++
	}
	return sent, nil
}
