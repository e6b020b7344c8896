package model

import (
	"time"

	"PPChat/data/database"
)

// Group 群聊附加信息，与 Member 表冗余，写成员时同一事务内维护
type Group struct {
	ConversationID string    `bson:"_id" json:"conversationId"`
	Admins         []string  `bson:"admins" json:"admins"`
	Members        []string  `bson:"members" json:"members"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updatedAt"`
}

func (g *Group) GetTableName() string {
	return database.TableGroup
}
