package model

import (
	"time"

	"PPChat/data/database"
	usermodel "PPChat/module/user/model"
)

// Message 追加写，创建后不可修改。ReadBy 是发送瞬间房间里在线的其他用户快照。
type Message struct {
	ID             string    `bson:"_id" json:"_id"`
	ConversationID string    `bson:"conversation_id" json:"conversationId"`
	SenderID       string    `bson:"sender_id" json:"senderId"`
	Content        string    `bson:"content" json:"content"`
	ReadBy         []string  `bson:"read_by" json:"readBy"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
}

func (m *Message) GetTableName() string {
	return database.TableMessage
}

// Preview 会话列表里展示的最后一条消息
func (m *Message) Preview() string {
	const max = 100
	r := []rune(m.Content)
	if len(r) > max {
		return string(r[:max])
	}
	return m.Content
}

// MessageView 历史消息返回，带发送者摘要
type MessageView struct {
	Message `bson:",inline"`
	Sender  *usermodel.Summary `bson:"-" json:"sender,omitempty"`
}

// History 分页字段平铺在顶层
type History struct {
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
	Total    int64         `json:"total"`
	Messages []MessageView `json:"messages"`
}

// Created message.created 事件负载
type Created struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	ReadBy         []string  `json:"readBy"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (m *Message) Created() Created {
	return Created{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		ReadBy:         m.ReadBy,
		CreatedAt:      m.CreatedAt,
	}
}
