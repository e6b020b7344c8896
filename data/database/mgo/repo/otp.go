package repo

import (
	"context"
	"time"

	"PPChat/data/database"
	usermodel "PPChat/module/user/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var newestFirst = options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

func (m *Mongo) CreateOTP(ctx context.Context, o *usermodel.OTP) error {
	_, err := m.otps.InsertOne(ctx, o)
	return mapErr(err)
}

// FindOTP 未使用、未过期、验证码匹配的最新一条
func (m *Mongo) FindOTP(ctx context.Context, email, code string, now time.Time) (*usermodel.OTP, error) {
	return findOne[usermodel.OTP](ctx, m.otps, bson.M{
		"email":     email,
		"code":      code,
		"used":      false,
		"expiry_at": bson.M{"$gt": now},
	}, newestFirst)
}

// FindVerifiedOTP 已校验但还没用于重置密码的最新一条
func (m *Mongo) FindVerifiedOTP(ctx context.Context, email string, typ usermodel.OTPType, now time.Time) (*usermodel.OTP, error) {
	return findOne[usermodel.OTP](ctx, m.otps, bson.M{
		"email":     email,
		"type":      typ,
		"used":      true,
		"consumed":  false,
		"expiry_at": bson.M{"$gt": now},
	}, newestFirst)
}

func (m *Mongo) MarkOTPUsed(ctx context.Context, id string) error {
	return m.casOTP(ctx, bson.M{"_id": id, "used": false}, "used")
}

func (m *Mongo) ConsumeOTP(ctx context.Context, id string) error {
	return m.casOTP(ctx, bson.M{"_id": id, "consumed": false}, "consumed")
}

// casOTP 条件更新，并发下只有一个请求能翻转标记
func (m *Mongo) casOTP(ctx context.Context, filter bson.M, field string) error {
	res, err := m.otps.UpdateOne(ctx, filter, bson.M{"$set": bson.M{field: true}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}
