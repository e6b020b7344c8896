package repo

import (
	"context"
	"time"

	"PPChat/data/database"
	msgmodel "PPChat/module/message/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AppendMessage 消息、会话预览、outbox 同一事务。
// 预览只在新消息不早于已有预览时推进，避免并发写乱序。
func (m *Mongo) AppendMessage(ctx context.Context, msg *msgmodel.Message, out *msgmodel.OutboxEntry) error {
	return m.tx.Transaction(ctx, func(ctx context.Context) error {
		if err := m.convs.FindOne(ctx, bson.M{"_id": msg.ConversationID},
			options.FindOne().SetProjection(bson.M{"_id": 1})).Err(); err != nil {
			return mapErr(err)
		}
		if _, err := m.messages.InsertOne(ctx, msg); err != nil {
			return mapErr(err)
		}
		_, err := m.convs.UpdateOne(ctx, bson.M{
			"_id": msg.ConversationID,
			"$or": bson.A{
				bson.M{"last_message_at": bson.M{"$exists": false}},
				bson.M{"last_message_at": bson.M{"$lte": msg.CreatedAt}},
			},
		}, bson.M{"$set": bson.M{
			"last_message":    msg.Preview(),
			"last_message_at": msg.CreatedAt,
			"updated_at":      time.Now().UTC(),
		}})
		if err != nil {
			return mapErr(err)
		}
		if out != nil {
			if _, err := m.outbox.InsertOne(ctx, out); err != nil {
				return mapErr(err)
			}
		}
		return nil
	})
}

func (m *Mongo) ListMessages(ctx context.Context, conversationID string, skip, limit int) ([]msgmodel.Message, error) {
	return find[msgmodel.Message](ctx, m.messages, bson.M{"conversation_id": conversationID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
			SetSkip(int64(skip)).
			SetLimit(int64(limit)))
}

func (m *Mongo) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	n, err := m.messages.CountDocuments(ctx, bson.M{"conversation_id": conversationID})
	return n, mapErr(err)
}

func (m *Mongo) FindMessage(ctx context.Context, id string) (*msgmodel.Message, error) {
	return findOne[msgmodel.Message](ctx, m.messages, bson.M{"_id": id})
}

// UpsertReceipt 只在第一次确认时写入，返回是否新建
func (m *Mongo) UpsertReceipt(ctx context.Context, r *msgmodel.Receipt) (bool, error) {
	res, err := m.receipts.UpdateOne(ctx,
		bson.M{"message_id": r.MessageID, "user_id": r.UserID},
		bson.M{"$setOnInsert": bson.M{
			"_id":             r.ID,
			"conversation_id": r.ConversationID,
			"read_at":         r.ReadAt,
		}},
		options.Update().SetUpsert(true))
	if err != nil {
		if mapped := mapErr(err); database.IsDuplicate(mapped) {
			// 并发确认，另一个请求已写入
			return false, nil
		}
		return false, mapErr(err)
	}
	return res.UpsertedCount > 0, nil
}

func (m *Mongo) ListReceipts(ctx context.Context, messageID string) ([]msgmodel.Receipt, error) {
	return find[msgmodel.Receipt](ctx, m.receipts, bson.M{"message_id": messageID},
		options.Find().SetSort(bson.D{{Key: "read_at", Value: 1}}))
}
