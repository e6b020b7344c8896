package repo

import (
	"context"
	"errors"
	"time"

	"PPChat/data/database"
	notimodel "PPChat/module/notification/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func notificationFilter(f notimodel.Filter) bson.M {
	q := bson.M{"recipient_id": f.RecipientID}
	if f.ConversationID != "" {
		q["conversation_id"] = f.ConversationID
	}
	switch {
	case f.UnreadOnly:
		q["is_read"] = false
	case f.OnlyRead:
		q["is_read"] = true
	}
	if f.Type != "" {
		q["type"] = f.Type
	}
	return q
}

// InsertNotifications 重复投递时唯一索引挡掉已存在的行，返回实际插入数
func (m *Mongo) InsertNotifications(ctx context.Context, ns []notimodel.Notification) (int, error) {
	if len(ns) == 0 {
		return 0, nil
	}
	res, err := m.notifications.InsertMany(ctx, toDocs(ns), options.InsertMany().SetOrdered(false))
	if err != nil {
		if dupOnly(err) {
			var bwe mongo.BulkWriteException
			_ = errors.As(err, &bwe)
			return len(ns) - len(bwe.WriteErrors), nil
		}
		return 0, mapErr(err)
	}
	return len(res.InsertedIDs), nil
}

func (m *Mongo) ListNotifications(ctx context.Context, f notimodel.Filter, skip, limit int) ([]notimodel.Notification, error) {
	return find[notimodel.Notification](ctx, m.notifications, notificationFilter(f),
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
			SetSkip(int64(skip)).
			SetLimit(int64(limit)))
}

func (m *Mongo) CountNotifications(ctx context.Context, f notimodel.Filter) (int64, error) {
	n, err := m.notifications.CountDocuments(ctx, notificationFilter(f))
	return n, mapErr(err)
}

func (m *Mongo) FindNotification(ctx context.Context, id string) (*notimodel.Notification, error) {
	return findOne[notimodel.Notification](ctx, m.notifications, bson.M{"_id": id})
}

func (m *Mongo) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := m.notifications.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"is_read":    true,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (m *Mongo) MarkNotificationsRead(ctx context.Context, f notimodel.Filter) (notimodel.UpdateResult, error) {
	res, err := m.notifications.UpdateMany(ctx, notificationFilter(f), bson.M{"$set": bson.M{
		"is_read":    true,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return notimodel.UpdateResult{}, mapErr(err)
	}
	return notimodel.UpdateResult{MatchedCount: res.MatchedCount, ModifiedCount: res.ModifiedCount}, nil
}

func (m *Mongo) DeleteNotifications(ctx context.Context, f notimodel.Filter) (int64, error) {
	res, err := m.notifications.DeleteMany(ctx, notificationFilter(f))
	if err != nil {
		return 0, mapErr(err)
	}
	return res.DeletedCount, nil
}
