package memdb

import (
	"strings"
	"sync"

	chatmodel "PPChat/module/chat/model"
	msgmodel "PPChat/module/message/model"
	notimodel "PPChat/module/notification/model"
	usermodel "PPChat/module/user/model"
)

// DB 进程内存储，实现与 mongo repo 相同的方法集。
// 本地开发（storage.driver=memory）和测试使用；一把锁保证复合写的原子性。
type DB struct {
	mu sync.RWMutex

	users         map[string]*usermodel.User
	otps          []*usermodel.OTP
	convs         map[string]*chatmodel.Conversation
	pairs         map[string]string // pair_key -> conversation id
	members       []*chatmodel.Member
	groups        map[string]*chatmodel.Group
	messages      []*msgmodel.Message
	receipts      map[string]*msgmodel.Receipt // message|user
	outbox        []*msgmodel.OutboxEntry
	notifications []*notimodel.Notification
}

func New() *DB {
	return &DB{
		users:    make(map[string]*usermodel.User),
		convs:    make(map[string]*chatmodel.Conversation),
		pairs:    make(map[string]string),
		groups:   make(map[string]*chatmodel.Group),
		receipts: make(map[string]*msgmodel.Receipt),
	}
}

func key(parts ...string) string { return strings.Join(parts, "|") }

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func removeStr(ss []string, s string) []string {
	out := ss[:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
