package repo

import (
	"context"
	"errors"

	"PPChat/data/database"
	"PPChat/data/database/mgo/mongoutil"
	"PPChat/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo 所有集合的存储实现；多文档写统一走 tx
type Mongo struct {
	db *mongo.Database
	tx mongoutil.Tx

	users         *mongo.Collection
	otps          *mongo.Collection
	convs         *mongo.Collection
	members       *mongo.Collection
	groups        *mongo.Collection
	messages      *mongo.Collection
	receipts      *mongo.Collection
	outbox        *mongo.Collection
	notifications *mongo.Collection
}

func New(db *mongo.Database, tx mongoutil.Tx) *Mongo {
	if tx == nil {
		tx = mongoutil.NoopTx()
	}
	return &Mongo{
		db:            db,
		tx:            tx,
		users:         db.Collection(database.TableUser),
		otps:          db.Collection(database.TableOTP),
		convs:         db.Collection(database.TableConversation),
		members:       db.Collection(database.TableMember),
		groups:        db.Collection(database.TableGroup),
		messages:      db.Collection(database.TableMessage),
		receipts:      db.Collection(database.TableReceipt),
		outbox:        db.Collection(database.TableOutbox),
		notifications: db.Collection(database.TableNotification),
	}
}

// EnsureIndexes 启动时建索引，幂等
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	hasPairKey := bson.M{"pair_key": bson.M{"$exists": true}}
	hasMessageID := bson.M{"message_id": bson.M{"$exists": true}}
	specs := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{m.users, []mongo.IndexModel{
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{m.otps, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "expiry_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(3600)},
		}},
		{m.convs, []mongo.IndexModel{
			{Keys: bson.D{{Key: "pair_key", Value: 1}}, Options: options.Index().SetUnique(true).SetPartialFilterExpression(hasPairKey)},
		}},
		{m.members, []mongo.IndexModel{
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "joined_at", Value: 1}}},
		}},
		{m.messages, []mongo.IndexModel{
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		}},
		{m.receipts, []mongo.IndexModel{
			{Keys: bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{m.outbox, []mongo.IndexModel{
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		}},
		{m.notifications, []mongo.IndexModel{
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "message_id", Value: 1}, {Key: "recipient_id", Value: 1}}, Options: options.Index().SetUnique(true).SetPartialFilterExpression(hasMessageID)},
		}},
	}
	for _, s := range specs {
		if _, err := s.coll.Indexes().CreateMany(ctx, s.models); err != nil {
			return errs.WrapMsg(err, "create indexes", "collection", s.coll.Name())
		}
	}
	return nil
}

// mapErr 驱动错误 -> 存储层哨兵错误
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return errs.WrapMsg(database.ErrNotFound, err.Error())
	case mongo.IsDuplicateKeyError(err):
		return errs.WrapMsg(database.ErrDuplicate, err.Error())
	default:
		return errs.Wrap(err)
	}
}

// dupOnly 批量写的错误全部是唯一键冲突
func dupOnly(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return false
	}
	if bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != 11000 {
			return false
		}
	}
	return true
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOneOptions) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter, opts...).Decode(&out); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func find[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)
	out := make([]T, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func toDocs[T any](in []T) []interface{} {
	out := make([]interface{}, len(in))
	for i := range in {
		out[i] = in[i]
	}
	return out
}
