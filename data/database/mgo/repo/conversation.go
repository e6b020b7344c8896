package repo

import (
	"context"
	"time"

	chatmodel "PPChat/module/chat/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationIDsForUser 按加入时间排序
func (m *Mongo) ConversationIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := find[chatmodel.Member](ctx, m.members, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}}).SetProjection(bson.M{"conversation_id": 1}))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ConversationID)
	}
	return ids, nil
}

func (m *Mongo) FindConversation(ctx context.Context, id string) (*chatmodel.Conversation, error) {
	return findOne[chatmodel.Conversation](ctx, m.convs, bson.M{"_id": id})
}

func (m *Mongo) FindConversations(ctx context.Context, ids []string) ([]chatmodel.Conversation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return find[chatmodel.Conversation](ctx, m.convs, bson.M{"_id": bson.M{"$in": ids}})
}

func (m *Mongo) FindPrivateByPair(ctx context.Context, pairKey string) (*chatmodel.Conversation, error) {
	return findOne[chatmodel.Conversation](ctx, m.convs, bson.M{"pair_key": pairKey, "type": chatmodel.ConversationPrivate})
}

// CreateConversation 会话、成员、群信息一次写入；单聊 pair_key 冲突返回 ErrDuplicate
func (m *Mongo) CreateConversation(ctx context.Context, conv *chatmodel.Conversation, members []chatmodel.Member, group *chatmodel.Group) error {
	return m.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := m.convs.InsertOne(ctx, conv); err != nil {
			return mapErr(err)
		}
		if len(members) > 0 {
			_, err := m.members.InsertMany(ctx, toDocs(members), options.InsertMany().SetOrdered(false))
			if err != nil && !dupOnly(err) {
				return mapErr(err)
			}
		}
		if group != nil {
			if _, err := m.groups.InsertOne(ctx, group); err != nil {
				return mapErr(err)
			}
		}
		return nil
	})
}

func (m *Mongo) ListMembers(ctx context.Context, conversationID string) ([]chatmodel.Member, error) {
	return find[chatmodel.Member](ctx, m.members, bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}}))
}

func (m *Mongo) FindMember(ctx context.Context, conversationID, userID string) (*chatmodel.Member, error) {
	return findOne[chatmodel.Member](ctx, m.members, bson.M{"conversation_id": conversationID, "user_id": userID})
}

// AddMember 成员行与群信息同事务
func (m *Mongo) AddMember(ctx context.Context, mem *chatmodel.Member) error {
	return m.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := m.members.InsertOne(ctx, mem); err != nil {
			return mapErr(err)
		}
		set := bson.M{"members": mem.UserID}
		if mem.IsAdmin() {
			set["admins"] = mem.UserID
		}
		_, err := m.groups.UpdateOne(ctx, bson.M{"_id": mem.ConversationID}, bson.M{
			"$addToSet": set,
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		})
		return mapErr(err)
	})
}

// RemoveMember 不存在也算成功，返回是否真的删除了
func (m *Mongo) RemoveMember(ctx context.Context, conversationID, userID string) (bool, error) {
	var removed bool
	err := m.tx.Transaction(ctx, func(ctx context.Context) error {
		res, err := m.members.DeleteOne(ctx, bson.M{"conversation_id": conversationID, "user_id": userID})
		if err != nil {
			return mapErr(err)
		}
		removed = res.DeletedCount > 0
		_, err = m.groups.UpdateOne(ctx, bson.M{"_id": conversationID}, bson.M{
			"$pull": bson.M{"members": userID, "admins": userID},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
		return mapErr(err)
	})
	return removed, err
}

// CountMembers 按会话聚合成员数，不落库
func (m *Mongo) CountMembers(ctx context.Context, conversationIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}
	pipeline := bson.A{
		bson.M{"$match": bson.M{"conversation_id": bson.M{"$in": conversationIDs}}},
		bson.M{"$group": bson.M{"_id": "$conversation_id", "count": bson.M{"$sum": 1}}},
	}
	cur, err := m.members.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)
	var rows []struct {
		ID    string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, mapErr(err)
	}
	for _, r := range rows {
		out[r.ID] = r.Count
	}
	return out, nil
}

func (m *Mongo) FindGroup(ctx context.Context, conversationID string) (*chatmodel.Group, error) {
	return findOne[chatmodel.Group](ctx, m.groups, bson.M{"_id": conversationID})
}
