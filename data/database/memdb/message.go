package memdb

import (
	"context"
	"sort"
	"time"

	"PPChat/data/database"
	msgmodel "PPChat/module/message/model"
)

func (db *DB) AppendMessage(ctx context.Context, msg *msgmodel.Message, out *msgmodel.OutboxEntry) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	conv, ok := db.convs[msg.ConversationID]
	if !ok {
		return database.ErrNotFound
	}
	for _, m := range db.messages {
		if m.ID == msg.ID {
			return database.ErrDuplicate
		}
	}
	cp := *msg
	cp.ReadBy = append([]string(nil), msg.ReadBy...)
	db.messages = append(db.messages, &cp)

	if conv.LastMessageAt == nil || !msg.CreatedAt.Before(*conv.LastMessageAt) {
		at := msg.CreatedAt
		conv.LastMessage = msg.Preview()
		conv.LastMessageAt = &at
		conv.UpdatedAt = time.Now().UTC()
	}
	if out != nil {
		o := *out
		db.outbox = append(db.outbox, &o)
	}
	return nil
}

func (db *DB) conversationMessages(conversationID string) []*msgmodel.Message {
	out := make([]*msgmodel.Message, 0)
	for _, m := range db.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (db *DB) ListMessages(ctx context.Context, conversationID string, skip, limit int) ([]msgmodel.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	all := db.conversationMessages(conversationID)
	out := make([]msgmodel.Message, 0, limit)
	for i := skip; i < len(all) && len(out) < limit; i++ {
		out = append(out, *all[i])
	}
	return out, nil
}

func (db *DB) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return int64(len(db.conversationMessages(conversationID))), nil
}

func (db *DB) FindMessage(ctx context.Context, id string) (*msgmodel.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, m := range db.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (db *DB) UpsertReceipt(ctx context.Context, r *msgmodel.Receipt) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	k := key(r.MessageID, r.UserID)
	if _, ok := db.receipts[k]; ok {
		return false, nil
	}
	cp := *r
	db.receipts[k] = &cp
	return true, nil
}

func (db *DB) ListReceipts(ctx context.Context, messageID string) ([]msgmodel.Receipt, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]msgmodel.Receipt, 0)
	for _, r := range db.receipts {
		if r.MessageID == messageID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReadAt.Before(out[j].ReadAt) })
	return out, nil
}

// Outbox 测试用：当前所有 outbox 记录
func (db *DB) Outbox() []msgmodel.OutboxEntry {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]msgmodel.OutboxEntry, 0, len(db.outbox))
	for _, o := range db.outbox {
		out = append(out, *o)
	}
	return out
}

func (db *DB) PendingOutbox(ctx context.Context, limit int) ([]msgmodel.OutboxEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]msgmodel.OutboxEntry, 0)
	for _, o := range db.outbox {
		if o.Status == msgmodel.OutboxPending {
			out = append(out, *o)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (db *DB) outboxByID(id string) (*msgmodel.OutboxEntry, error) {
	for _, o := range db.outbox {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, database.ErrNotFound
}

func (db *DB) MarkOutboxPublished(ctx context.Context, id string, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, err := db.outboxByID(id)
	if err != nil {
		return err
	}
	o.Status = msgmodel.OutboxPublished
	o.PublishedAt = &at
	return nil
}

func (db *DB) MarkOutboxFailed(ctx context.Context, id, lastErr string, final bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, err := db.outboxByID(id)
	if err != nil {
		return err
	}
	o.Attempts++
	o.LastError = lastErr
	if final {
		o.Status = msgmodel.OutboxFailed
	}
	return nil
}
