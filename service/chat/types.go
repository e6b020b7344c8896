package chat

import (
	"context"
	"encoding/json"
	"time"
)

// 入站事件
const (
	EventJoin     = "join_conversation"
	EventLeave    = "leave_conversation"
	EventSend     = "send_message"
	EventTyping   = "typing"
	EventMarkRead = "mark_read"
)

// 出站事件
const (
	EventConnected  = "connected"
	EventNewMessage = "new_message"
	EventUserTyping = "user_typing"
	EventRead       = "message_read"
	EventError      = "error"
)

// Frame 双向帧 {"event": "...", "data": ...}
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler 按事件名注册；返回错误时网关只给当前会话回 error 帧
type Handler interface {
	Event() string
	Handle(ctx context.Context, s *Session, data json.RawMessage) error
}

type Connected struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type SenderRef struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

type NewMessage struct {
	ID             string    `json:"_id"`
	ConversationID string    `json:"conversationId"`
	Sender         SenderRef `json:"sender"`
	Content        string    `json:"content"`
	ReadBy         []string  `json:"readBy"`
	CreatedAt      time.Time `json:"createdAt"`
	// 发送方带了才回填，用来对上本地的待发消息
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

type SendMessageReq struct {
	ConversationID  string `json:"conversationId"`
	Content         string `json:"content"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

type TypingReq struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type UserTyping struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
	Username       string `json:"username"`
	UserID         string `json:"userId"`
}

type MarkReadReq struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type MessageRead struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	UserID         string    `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}
