package model

import (
	"time"

	"PPChat/data/database"
)

// User 账号主档。用户名、邮箱全局唯一。
type User struct {
	ID           string    `bson:"_id" json:"_id"`
	Username     string    `bson:"username" json:"username"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
}

func (u *User) GetTableName() string {
	return database.TableUser
}

// Summary 对外展示用，不带任何凭据字段
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

type Summary struct {
	ID        string    `bson:"_id" json:"_id"`
	Username  string    `bson:"username" json:"username"`
	Email     string    `bson:"email" json:"email"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Profile /me 返回
type Profile struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Username          string    `json:"username"`
	CreatedAt         time.Time `json:"createdAt"`
	ConversationCount int64     `json:"conversationCount"`
}
