package model

import (
	"time"

	"PPChat/data/database"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Member 会话成员关系，(conversation_id, user_id) 唯一
type Member struct {
	ID             string    `bson:"_id" json:"_id"`
	ConversationID string    `bson:"conversation_id" json:"conversationId"`
	UserID         string    `bson:"user_id" json:"userId"`
	Role           Role      `bson:"role" json:"role"`
	JoinedAt       time.Time `bson:"joined_at" json:"joinedAt"`
}

func (m *Member) GetTableName() string {
	return database.TableMember
}

func (m *Member) IsAdmin() bool { return m.Role == RoleAdmin }
