package chat

import (
	"sync"
)

// Registry 本节点的会话索引：按 id、按用户、按会话房间
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Session
	byUser map[string]map[string]*Session // user -> session id -> session
	rooms  map[string]map[string]*Session // conversation -> session id -> session
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Session),
		byUser: make(map[string]map[string]*Session),
		rooms:  make(map[string]map[string]*Session),
	}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
	m := r.byUser[s.UserID]
	if m == nil {
		m = make(map[string]*Session)
		r.byUser[s.UserID] = m
	}
	m[s.ID] = s
}

// Remove 同时退出所有房间；返回该用户是否已无其他会话
func (r *Registry) Remove(s *Session) (lastForUser bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; !ok {
		return false
	}
	delete(r.byID, s.ID)
	for _, room := range s.Rooms() {
		r.leaveLocked(room, s)
	}
	if m := r.byUser[s.UserID]; m != nil {
		delete(m, s.ID)
		if len(m) == 0 {
			delete(r.byUser, s.UserID)
			return true
		}
	}
	return false
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

func (r *Registry) UserSessions(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	out := make([]*Session, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Join(room string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.rooms[room]
	if m == nil {
		m = make(map[string]*Session)
		r.rooms[room] = m
	}
	m[s.ID] = s
	s.joinRoom(room)
}

func (r *Registry) Leave(room string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, s)
}

func (r *Registry) leaveLocked(room string, s *Session) {
	if m := r.rooms[room]; m != nil {
		delete(m, s.ID)
		if len(m) == 0 {
			delete(r.rooms, room)
		}
	}
	s.leaveRoom(room)
}

// RoomSessions 房间内所有会话的快照
func (r *Registry) RoomSessions(room string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.rooms[room]
	out := make([]*Session, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

// RoomUsers 房间内去重后的用户
func (r *Registry) RoomUsers(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, s := range r.rooms[room] {
		if _, ok := seen[s.UserID]; ok {
			continue
		}
		seen[s.UserID] = struct{}{}
		out = append(out, s.UserID)
	}
	return out
}

// Broadcast 编码一次发给房间内所有会话，exceptID 非空时跳过该会话
func (r *Registry) Broadcast(room, exceptID, event string, data any) (int, error) {
	b, err := EncodeFrame(event, data)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range r.RoomSessions(room) {
		if s.ID == exceptID {
			continue
		}
		if s.Enqueue(b) {
			n++
		}
	}
	return n, nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
