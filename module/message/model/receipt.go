package model

import (
	"time"

	"PPChat/data/database"
)

// Receipt 已读回执，(message_id, user_id) 唯一，只保留第一次的时间
type Receipt struct {
	ID             string    `bson:"_id" json:"-"`
	MessageID      string    `bson:"message_id" json:"messageId"`
	ConversationID string    `bson:"conversation_id" json:"conversationId"`
	UserID         string    `bson:"user_id" json:"userId"`
	ReadAt         time.Time `bson:"read_at" json:"readAt"`
}

func (r *Receipt) GetTableName() string {
	return database.TableReceipt
}
