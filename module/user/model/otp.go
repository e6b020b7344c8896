package model

import (
	"time"

	"PPChat/data/database"
)

type OTPType string

const (
	OTPForgot OTPType = "forgot"
	OTPReset  OTPType = "reset"
)

func (t OTPType) Valid() bool { return t == OTPForgot || t == OTPReset }

// OTP 邮箱验证码。Used=已校验，Consumed=已用于重置密码。
type OTP struct {
	ID        string    `bson:"_id" json:"_id"`
	Email     string    `bson:"email" json:"email"`
	Code      string    `bson:"code" json:"-"`
	Type      OTPType   `bson:"type" json:"type"`
	ExpiryAt  time.Time `bson:"expiry_at" json:"expiryAt"`
	Used      bool      `bson:"used" json:"used"`
	Consumed  bool      `bson:"consumed" json:"consumed"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"` // TTL 索引
}

func (o *OTP) GetTableName() string {
	return database.TableOTP
}

func (o *OTP) Expired(now time.Time) bool {
	return !now.Before(o.ExpiryAt)
}
