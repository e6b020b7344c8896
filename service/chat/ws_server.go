package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"PPChat/global/config"
	"PPChat/logger"
	midsec "PPChat/middleware/security"
	"PPChat/service/storage"
	"PPChat/tools/errs"
	"PPChat/tools/ids"
	"PPChat/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server WebSocket 网关：先鉴权再升级，每连接一读一写两个协程
type Server struct {
	cfg      config.GatewayConfig
	auth     *midsec.Options
	registry *Registry
	disp     *Dispatcher
	presence storage.Presence
	ids      *ids.Generator
	upgrader websocket.Upgrader
}

func NewServer(cfg config.GatewayConfig, auth *midsec.Options, presence storage.Presence, nodeID int64) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 128
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 2 * cfg.PingInterval
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 10 * time.Second
	}
	if presence == nil {
		presence = storage.NewMemoryPresence()
	}
	up := websocket.Upgrader{ReadBufferSize: cfg.ReadBufferSize, WriteBufferSize: cfg.WriteBufferSize}
	if !cfg.CheckOrigin {
		// 跨域由 CORS 配置和 token 控制
		up.CheckOrigin = func(*http.Request) bool { return true }
	}
	return &Server{
		cfg:      cfg,
		auth:     auth,
		registry: NewRegistry(),
		disp:     NewDispatcher(),
		presence: presence,
		ids:      ids.NewGenerator(nodeID),
		upgrader: up,
	}
}

func (s *Server) Registry() *Registry     { return s.registry }
func (s *Server) Dispatcher() *Dispatcher { return s.disp }

// HandleWS GET /ws；鉴权失败直接 401，不升级
func (s *Server) HandleWS(c *gin.Context) {
	id, err := midsec.Authenticate(c.Request, s.auth)
	if err != nil {
		ce, _ := errs.As(err)
		msg := "Authentication required"
		if ce != nil {
			msg = ce.Msg
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": msg})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 非 WebSocket 请求/握手失败，Upgrade 已写回响应
		logger.Info("ws upgrade failed", zap.Error(err))
		return
	}

	sess := NewSession(s.ids.NextString(), id.ID, id.Username, ws, s.cfg.SendBuffer)
	s.registry.Add(sess)
	ctx := context.WithoutCancel(c.Request.Context())
	if err := s.presence.Connect(ctx, sess.UserID, sess.ID); err != nil {
		logger.Warn("presence connect failed", zap.String("user", sess.UserID), zap.Error(err))
	}
	logger.Info("ws connected", zap.String("session", sess.ID), zap.String("user", sess.UserID))

	safe.Go("ws-write", func() { sess.writeLoop(s.cfg.PingInterval, s.cfg.WriteWait) })
	sess.Emit(EventConnected, Connected{SessionID: sess.ID, UserID: sess.UserID, Username: sess.Username})

	s.readLoop(ctx, sess, ws)
	s.disconnect(ctx, sess)
}

// readLoop 同一连接的事件按到达顺序串行处理
func (s *Server) readLoop(ctx context.Context, sess *Session, ws *websocket.Conn) {
	if s.cfg.ReadLimit > 0 {
		ws.SetReadLimit(s.cfg.ReadLimit)
	}
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		if err := s.presence.Touch(ctx, sess.UserID, sess.ID); err != nil {
			logger.Debug("presence touch failed", zap.String("user", sess.UserID), zap.Error(err))
		}
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			s.logReadErr(sess, err)
			return
		}
		select {
		case <-sess.Done():
			return
		default:
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		frame, err := ParseFrame(data)
		if err != nil {
			sess.EmitError(ErrorMessage(err, "Invalid frame"))
			continue
		}
		s.handle(ctx, sess, frame)
	}
}

func (s *Server) handle(ctx context.Context, sess *Session, f *Frame) {
	defer safe.Recover("ws-handler:" + f.Event)
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandlerTimeout)
	defer cancel()
	if err := s.disp.Dispatch(hctx, sess, f.Event, f.Data); err != nil {
		if ce, ok := errs.As(err); !ok || ce.Code == errs.ServerError {
			logger.Error("ws handler failed", zap.String("event", f.Event), zap.String("user", sess.UserID), zap.Error(err))
		}
		sess.EmitError(ErrorMessage(err, "Failed to process "+f.Event))
	}
}

func (s *Server) disconnect(ctx context.Context, sess *Session) {
	s.registry.Remove(sess)
	sess.Close()
	if err := s.presence.Disconnect(ctx, sess.UserID, sess.ID); err != nil {
		logger.Warn("presence disconnect failed", zap.String("user", sess.UserID), zap.Error(err))
	}
	logger.Info("ws disconnected", zap.String("session", sess.ID), zap.String("user", sess.UserID))
}

func (s *Server) logReadErr(sess *Session, err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		logger.Debug("ws peer closed", zap.String("session", sess.ID))
		return
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		logger.Info("ws read timeout", zap.String("session", sess.ID))
		return
	}
	logger.Debug("ws read error", zap.String("session", sess.ID), zap.Error(err))
}

// Shutdown 关闭所有会话
func (s *Server) Shutdown() {
	s.registry.mu.RLock()
	all := make([]*Session, 0, len(s.registry.byID))
	for _, sess := range s.registry.byID {
		all = append(all, sess)
	}
	s.registry.mu.RUnlock()
	for _, sess := range all {
		sess.Close()
	}
}
