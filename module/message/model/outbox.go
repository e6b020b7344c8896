package model

import (
	"time"

	"PPChat/data/database"
)

const EventMessageCreated = "message.created"

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxPublished OutboxStatus = "published"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxEntry 与消息同事务写入，由 relay 异步投递到事件总线
type OutboxEntry struct {
	ID          string       `bson:"_id" json:"id"`
	Kind        string       `bson:"kind" json:"kind"`
	Key         string       `bson:"key" json:"key"` // 分区键：会话ID
	Payload     []byte       `bson:"payload" json:"payload"`
	Status      OutboxStatus `bson:"status" json:"status"`
	Attempts    int          `bson:"attempts" json:"attempts"`
	LastError   string       `bson:"last_error,omitempty" json:"lastError,omitempty"`
	CreatedAt   time.Time    `bson:"created_at" json:"createdAt"`
	PublishedAt *time.Time   `bson:"published_at,omitempty" json:"publishedAt,omitempty"`
}

func (o *OutboxEntry) GetTableName() string {
	return database.TableOutbox
}
