package repo

import (
	"context"
	"regexp"
	"time"

	"PPChat/data/database"
	usermodel "PPChat/module/user/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var summaryProjection = bson.M{"_id": 1, "username": 1, "email": 1, "created_at": 1}

func (m *Mongo) CreateUser(ctx context.Context, u *usermodel.User) error {
	_, err := m.users.InsertOne(ctx, u)
	return mapErr(err)
}

func (m *Mongo) FindUserByID(ctx context.Context, id string) (*usermodel.User, error) {
	return findOne[usermodel.User](ctx, m.users, bson.M{"_id": id})
}

func (m *Mongo) FindUserByEmail(ctx context.Context, email string) (*usermodel.User, error) {
	return findOne[usermodel.User](ctx, m.users, bson.M{"email": email})
}

// UserExists 用户名或邮箱任一被占用
func (m *Mongo) UserExists(ctx context.Context, username, email string) (bool, error) {
	n, err := m.users.CountDocuments(ctx, bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"email": email},
	}}, options.Count().SetLimit(1))
	if err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}

func (m *Mongo) ListUsers(ctx context.Context) ([]usermodel.Summary, error) {
	return find[usermodel.Summary](ctx, m.users, bson.M{},
		options.Find().SetProjection(summaryProjection).SetSort(bson.D{{Key: "username", Value: 1}}))
}

// SearchUsers 用户名/邮箱子串匹配，忽略大小写
func (m *Mongo) SearchUsers(ctx context.Context, q string, limit int) ([]usermodel.Summary, error) {
	re := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"username": re},
		bson.M{"email": re},
	}}
	return find[usermodel.Summary](ctx, m.users, filter,
		options.Find().SetProjection(summaryProjection).SetLimit(int64(limit)).SetSort(bson.D{{Key: "username", Value: 1}}))
}

func (m *Mongo) FindUsersByIDs(ctx context.Context, ids []string) ([]usermodel.Summary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return find[usermodel.Summary](ctx, m.users, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(summaryProjection))
}

func (m *Mongo) UpdatePassword(ctx context.Context, id, hash string) error {
	res, err := m.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"password_hash": hash,
		"updated_at":    time.Now().UTC(),
	}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (m *Mongo) CountMemberships(ctx context.Context, userID string) (int64, error) {
	n, err := m.members.CountDocuments(ctx, bson.M{"user_id": userID})
	return n, mapErr(err)
}
