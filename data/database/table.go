package database

import "go.mongodb.org/mongo-driver/mongo"

// 集合名
const (
	TableUser         = "users"
	TableOTP          = "otps"
	TableConversation = "conversations"
	TableMember       = "conversation_members"
	TableGroup        = "groups"
	TableMessage      = "messages"
	TableReceipt      = "message_receipts"
	TableOutbox       = "outbox"
	TableNotification = "notifications"
)

type Table interface {
	GetTableName() string
}

// Collection 按模型取集合
func Collection(db *mongo.Database, t Table) *mongo.Collection {
	return db.Collection(t.GetTableName())
}
