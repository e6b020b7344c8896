package model

import (
	"time"

	"PPChat/data/database"
	chatmodel "PPChat/module/chat/model"
	usermodel "PPChat/module/user/model"
)

type Type string

const (
	TypeMessage Type = "message"
	TypeMention Type = "mention"
	TypeSystem  Type = "system"
)

func (t Type) Valid() bool {
	return t == TypeMessage || t == TypeMention || t == TypeSystem
}

// Notification 每个接收者一条，(message_id, recipient_id) 唯一
type Notification struct {
	ID             string    `bson:"_id" json:"_id"`
	RecipientID    string    `bson:"recipient_id" json:"recipient"`
	SenderID       string    `bson:"sender_id" json:"senderId"`
	Type           Type      `bson:"type" json:"type"`
	ConversationID string    `bson:"conversation_id" json:"conversationId"`
	MessageID      string    `bson:"message_id,omitempty" json:"messageId,omitempty"`
	Content        string    `bson:"content" json:"content"`
	IsRead         bool      `bson:"is_read" json:"isRead"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updatedAt"`
}

func (n *Notification) GetTableName() string {
	return database.TableNotification
}

// Filter 列表查询条件
type Filter struct {
	RecipientID    string
	ConversationID string
	UnreadOnly     bool
	OnlyRead       bool
	Type           Type
}

type ConversationRef struct {
	ID          string                     `json:"_id"`
	Name        string                     `json:"name"`
	Type        chatmodel.ConversationType `json:"type"`
	MemberCount int64                      `json:"memberCount"`
}

// View 列表返回：补全发送者与会话信息
type View struct {
	Notification
	Sender       *usermodel.Summary `json:"sender,omitempty"`
	Conversation *ConversationRef   `json:"conversation,omitempty"`
}

type Page struct {
	Notifications []View `json:"notifications"`
	Total         int64  `json:"total"`
	UnreadCount   int64  `json:"unreadCount"`
	HasMore       bool   `json:"hasMore"`
	CurrentPage   int    `json:"currentPage"`
}

type UpdateResult struct {
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
}
