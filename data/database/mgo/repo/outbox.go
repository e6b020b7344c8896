package repo

import (
	"context"
	"time"

	msgmodel "PPChat/module/message/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *Mongo) PendingOutbox(ctx context.Context, limit int) ([]msgmodel.OutboxEntry, error) {
	return find[msgmodel.OutboxEntry](ctx, m.outbox, bson.M{"status": msgmodel.OutboxPending},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit)))
}

func (m *Mongo) MarkOutboxPublished(ctx context.Context, id string, at time.Time) error {
	_, err := m.outbox.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":       msgmodel.OutboxPublished,
		"published_at": at,
	}})
	return mapErr(err)
}

// MarkOutboxFailed 记一次失败；final 时不再重试
func (m *Mongo) MarkOutboxFailed(ctx context.Context, id, lastErr string, final bool) error {
	status := msgmodel.OutboxPending
	if final {
		status = msgmodel.OutboxFailed
	}
	_, err := m.outbox.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{"status": status, "last_error": lastErr},
	})
	return mapErr(err)
}
