package memdb

import (
	"context"
	"time"

	"PPChat/data/database"
	chatmodel "PPChat/module/chat/model"
)

func (db *DB) ConversationIDsForUser(ctx context.Context, userID string) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	ids := make([]string, 0)
	for _, m := range db.members { // members 按写入顺序，即加入时间
		if m.UserID == userID {
			ids = append(ids, m.ConversationID)
		}
	}
	return ids, nil
}

func (db *DB) FindConversation(ctx context.Context, id string) (*chatmodel.Conversation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.convs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (db *DB) FindConversations(ctx context.Context, ids []string) ([]chatmodel.Conversation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]chatmodel.Conversation, 0, len(ids))
	for _, id := range ids {
		if c, ok := db.convs[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (db *DB) FindPrivateByPair(ctx context.Context, pairKey string) (*chatmodel.Conversation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	id, ok := db.pairs[pairKey]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *db.convs[id]
	return &cp, nil
}

func (db *DB) memberIndex(conversationID, userID string) int {
	for i, m := range db.members {
		if m.ConversationID == conversationID && m.UserID == userID {
			return i
		}
	}
	return -1
}

func (db *DB) CreateConversation(ctx context.Context, conv *chatmodel.Conversation, members []chatmodel.Member, group *chatmodel.Group) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.convs[conv.ID]; ok {
		return database.ErrDuplicate
	}
	if conv.PairKey != "" {
		if _, ok := db.pairs[conv.PairKey]; ok {
			return database.ErrDuplicate
		}
		db.pairs[conv.PairKey] = conv.ID
	}
	cp := *conv
	db.convs[conv.ID] = &cp
	for i := range members {
		if db.memberIndex(members[i].ConversationID, members[i].UserID) >= 0 {
			continue // 重复成员跳过，不影响整批
		}
		m := members[i]
		db.members = append(db.members, &m)
	}
	if group != nil {
		g := *group
		g.Admins = append([]string(nil), group.Admins...)
		g.Members = append([]string(nil), group.Members...)
		db.groups[g.ConversationID] = &g
	}
	return nil
}

func (db *DB) ListMembers(ctx context.Context, conversationID string) ([]chatmodel.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]chatmodel.Member, 0)
	for _, m := range db.members {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (db *DB) FindMember(ctx context.Context, conversationID, userID string) (*chatmodel.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	i := db.memberIndex(conversationID, userID)
	if i < 0 {
		return nil, database.ErrNotFound
	}
	cp := *db.members[i]
	return &cp, nil
}

func (db *DB) AddMember(ctx context.Context, mem *chatmodel.Member) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.memberIndex(mem.ConversationID, mem.UserID) >= 0 {
		return database.ErrDuplicate
	}
	cp := *mem
	db.members = append(db.members, &cp)
	if g, ok := db.groups[mem.ConversationID]; ok {
		if !containsStr(g.Members, mem.UserID) {
			g.Members = append(g.Members, mem.UserID)
		}
		if mem.IsAdmin() && !containsStr(g.Admins, mem.UserID) {
			g.Admins = append(g.Admins, mem.UserID)
		}
		g.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (db *DB) RemoveMember(ctx context.Context, conversationID, userID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	removed := false
	if i := db.memberIndex(conversationID, userID); i >= 0 {
		db.members = append(db.members[:i], db.members[i+1:]...)
		removed = true
	}
	if g, ok := db.groups[conversationID]; ok {
		g.Members = removeStr(g.Members, userID)
		g.Admins = removeStr(g.Admins, userID)
		g.UpdatedAt = time.Now().UTC()
	}
	return removed, nil
}

func (db *DB) CountMembers(ctx context.Context, conversationIDs []string) (map[string]int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string]int64, len(conversationIDs))
	want := make(map[string]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		want[id] = struct{}{}
	}
	for _, m := range db.members {
		if _, ok := want[m.ConversationID]; ok {
			out[m.ConversationID]++
		}
	}
	return out, nil
}

func (db *DB) FindGroup(ctx context.Context, conversationID string) (*chatmodel.Group, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	g, ok := db.groups[conversationID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *g
	cp.Admins = append([]string(nil), g.Admins...)
	cp.Members = append([]string(nil), g.Members...)
	return &cp, nil
}
