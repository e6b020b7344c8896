package model

import (
	"sort"
	"strings"
	"time"

	"PPChat/data/database"
)

type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

// PrivateNameSep 私聊名称分隔符：客户端按它拆出对方名字
const PrivateNameSep = "<->"

// Conversation 会话主档（单聊/群聊）。只有预览字段会随新消息变化。
type Conversation struct {
	ID            string           `bson:"_id" json:"_id"`
	Type          ConversationType `bson:"type" json:"type"`
	Name          string           `bson:"name" json:"name"`
	PairKey       string           `bson:"pair_key,omitempty" json:"-"` // 仅单聊：排序后的双方ID，唯一索引
	CreatedBy     string           `bson:"created_by,omitempty" json:"createdBy,omitempty"`
	LastMessage   string           `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	LastMessageAt *time.Time       `bson:"last_message_at,omitempty" json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time        `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time        `bson:"updated_at" json:"updatedAt"`
}

func (c *Conversation) GetTableName() string {
	return database.TableConversation
}

func (c *Conversation) IsGroup() bool { return c.Type == ConversationGroup }

// LastActivity 列表排序用：有消息按最后消息时间，否则按创建时间
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// ConversationView 列表返回，带实时计算的成员数
type ConversationView struct {
	Conversation `bson:",inline"`
	MemberCount  int64 `bson:"member_count" json:"memberCount"`
}

// PrivateName 两个用户名小写后排序再拼接，与发起方无关
func PrivateName(a, b string) string {
	names := []string{strings.ToLower(a), strings.ToLower(b)}
	sort.Strings(names)
	return names[0] + PrivateNameSep + names[1]
}

// OtherParty 按分隔符拆出不是 me 的那一方
func OtherParty(name, me string) string {
	parts := strings.SplitN(name, PrivateNameSep, 2)
	if len(parts) != 2 {
		return name
	}
	if strings.EqualFold(parts[0], me) {
		return parts[1]
	}
	return parts[0]
}

// PairKey 单聊唯一键
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
