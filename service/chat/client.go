package chat

import (
	"sync"
	"time"

	"PPChat/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Session 一条 WebSocket 连接；同一用户多端各自一条
type Session struct {
	ID       string
	UserID   string
	Username string

	conn *websocket.Conn
	send chan []byte // 单写协程消费

	mu    sync.Mutex
	rooms map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func NewSession(id, userID, username string, conn *websocket.Conn, queue int) *Session {
	if queue <= 0 {
		queue = 128
	}
	return &Session{
		ID:       id,
		UserID:   userID,
		Username: username,
		conn:     conn,
		send:     make(chan []byte, queue),
		rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Enqueue 不阻塞；队列满说明对端太慢，直接断开
func (s *Session) Enqueue(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- b:
		return true
	default:
		logger.Warn("ws send queue full, closing slow session",
			zap.String("session", s.ID), zap.String("user", s.UserID))
		s.Close()
		return false
	}
}

// Emit 编码并入队
func (s *Session) Emit(event string, data any) bool {
	b, err := EncodeFrame(event, data)
	if err != nil {
		logger.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return false
	}
	return s.Enqueue(b)
}

func (s *Session) EmitError(msg string) bool {
	return s.Emit(EventError, ErrorPayload{Message: msg})
}

// Close 幂等；writeLoop 收到信号后发 Close 帧并关连接
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) joinRoom(id string) {
	s.mu.Lock()
	s.rooms[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) leaveRoom(id string) {
	s.mu.Lock()
	delete(s.rooms, id)
	s.mu.Unlock()
}

// Rooms 当前加入的会话房间
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}

func (s *Session) InRoom(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[id]
	return ok
}

// writeLoop 唯一写者：业务帧 + 定时 ping
func (s *Session) writeLoop(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	}()
	for {
		select {
		case <-s.done:
			return
		case b := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				logger.Debug("ws write failed", zap.String("session", s.ID), zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("ws ping failed", zap.String("session", s.ID), zap.Error(err))
				s.Close()
				return
			}
		}
	}
}
