package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"PPChat/data/database"
	chatmodel "PPChat/module/chat/model"
	msgmodel "PPChat/module/message/model"
	usermodel "PPChat/module/user/model"
	"PPChat/tools/errs"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 100
)

type Repository interface {
	FindConversation(ctx context.Context, id string) (*chatmodel.Conversation, error)
	FindMember(ctx context.Context, conversationID, userID string) (*chatmodel.Member, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]usermodel.Summary, error)

	AppendMessage(ctx context.Context, msg *msgmodel.Message, out *msgmodel.OutboxEntry) error
	ListMessages(ctx context.Context, conversationID string, skip, limit int) ([]msgmodel.Message, error)
	CountMessages(ctx context.Context, conversationID string) (int64, error)
	FindMessage(ctx context.Context, id string) (*msgmodel.Message, error)
	UpsertReceipt(ctx context.Context, r *msgmodel.Receipt) (bool, error)
	ListReceipts(ctx context.Context, messageID string) ([]msgmodel.Receipt, error)
}

type Service struct {
	repo    Repository
	clients ClientIndex
	now     func() time.Time
}

type Option func(*Service)

// WithClientIndex 开启 clientMessageId 去重
func WithClientIndex(idx ClientIndex) Option {
	return func(s *Service) { s.clients = idx }
}

func New(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

type SendReq struct {
	ConversationID  string
	SenderID        string
	Content         string
	ReadBy          []string // 发送瞬间房间里在线的其他用户
	ClientMessageID string   // 可选，客户端重发用同一个
}

// Send 校验后把消息、会话预览、outbox 事件一次写入
func (s *Service) Send(ctx context.Context, req SendReq) (*msgmodel.Message, error) {
	msg, _, err := s.SendOnce(ctx, req)
	return msg, err
}

// SendOnce 同 Send；clientMessageId 命中窗口时返回已落库的那条，duplicate=true
func (s *Service) SendOnce(ctx context.Context, req SendReq) (msg *msgmodel.Message, duplicate bool, err error) {
	content := strings.TrimSpace(req.Content)
	if req.ConversationID == "" || content == "" {
		return nil, false, errs.Validation("conversationId and content are required")
	}
	if err := s.requireMember(ctx, req.ConversationID, req.SenderID); err != nil {
		return nil, false, err
	}

	msgID := primitive.NewObjectID().Hex()
	cid := strings.TrimSpace(req.ClientMessageID)
	if cid != "" && s.clients != nil {
		prev, existed, err := s.clients.Ensure(ctx, req.SenderID, cid, msgID)
		if err != nil {
			return nil, false, errs.WrapMsg(err, "client message index", "clientMessageId", cid)
		}
		if existed {
			m, err := s.findMessage(ctx, req.ConversationID, prev)
			if err != nil {
				if errs.HasCode(err, errs.NotFoundError) {
					// 第一次的写入还没完成，或者换了会话复用同一个 id
					return nil, false, errs.Conflict("Duplicate clientMessageId")
				}
				return nil, false, err
			}
			return m, true, nil
		}
		defer func() {
			if err != nil {
				_ = s.clients.Del(context.WithoutCancel(ctx), req.SenderID, cid)
			}
		}()
	}

	readBy := make([]string, 0, len(req.ReadBy))
	seen := make(map[string]struct{}, len(req.ReadBy))
	for _, id := range req.ReadBy {
		if id == "" || id == req.SenderID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		readBy = append(readBy, id)
	}

	now := s.now().UTC()
	msg = &msgmodel.Message{
		ID:             msgID,
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Content:        content,
		ReadBy:         readBy,
		CreatedAt:      now,
	}
	payload, err := json.Marshal(msg.Created())
	if err != nil {
		return nil, false, errs.WrapMsg(err, "encode message.created")
	}
	out := &msgmodel.OutboxEntry{
		ID:        uuid.NewString(),
		Kind:      msgmodel.EventMessageCreated,
		Key:       msg.ConversationID,
		Payload:   payload,
		Status:    msgmodel.OutboxPending,
		CreatedAt: now,
	}
	if err = s.repo.AppendMessage(ctx, msg, out); err != nil {
		if database.IsNotFound(err) {
			return nil, false, errs.NotFound("Conversation not found")
		}
		return nil, false, errs.WrapMsg(err, "append message", "conversation", req.ConversationID)
	}
	return msg, false, nil
}

// requireMember 会话不存在 404，非成员 403
func (s *Service) requireMember(ctx context.Context, conversationID, userID string) error {
	if _, err := s.repo.FindConversation(ctx, conversationID); err != nil {
		if database.IsNotFound(err) {
			return errs.NotFound("Conversation not found")
		}
		return errs.WrapMsg(err, "find conversation", "id", conversationID)
	}
	if _, err := s.repo.FindMember(ctx, conversationID, userID); err != nil {
		if database.IsNotFound(err) {
			return errs.Forbidden("Access denied to conversation")
		}
		return errs.WrapMsg(err, "find member", "conversation", conversationID)
	}
	return nil
}

// History 按时间正序分页，每条附发送者摘要
func (s *Service) History(ctx context.Context, callerID, conversationID string, page, limit int) (*msgmodel.History, error) {
	if conversationID == "" {
		return nil, errs.Validation("conversationId is required")
	}
	if err := s.requireMember(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID, (page-1)*limit, limit)
	if err != nil {
		return nil, errs.WrapMsg(err, "list messages", "conversation", conversationID)
	}
	total, err := s.repo.CountMessages(ctx, conversationID)
	if err != nil {
		return nil, errs.WrapMsg(err, "count messages", "conversation", conversationID)
	}

	senders, err := s.summaries(ctx, msgs)
	if err != nil {
		return nil, err
	}
	views := make([]msgmodel.MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := msgmodel.MessageView{Message: m}
		if sum, ok := senders[m.SenderID]; ok {
			v.Sender = &sum
		}
		views = append(views, v)
	}
	return &msgmodel.History{Page: page, Limit: limit, Total: total, Messages: views}, nil
}

func (s *Service) summaries(ctx context.Context, msgs []msgmodel.Message) (map[string]usermodel.Summary, error) {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}
	out := make(map[string]usermodel.Summary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := s.repo.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, errs.WrapMsg(err, "load senders")
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (s *Service) findMessage(ctx context.Context, conversationID, messageID string) (*msgmodel.Message, error) {
	m, err := s.repo.FindMessage(ctx, messageID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errs.NotFound("Message not found")
		}
		return nil, errs.WrapMsg(err, "find message", "id", messageID)
	}
	if m.ConversationID != conversationID {
		return nil, errs.NotFound("Message not found")
	}
	return m, nil
}

// Acknowledge 记录已读回执；重复确认保留第一次的时间，created=false
func (s *Service) Acknowledge(ctx context.Context, callerID, conversationID, messageID string) (*msgmodel.Receipt, bool, error) {
	if conversationID == "" || messageID == "" {
		return nil, false, errs.Validation("conversationId and messageId are required")
	}
	if err := s.requireMember(ctx, conversationID, callerID); err != nil {
		return nil, false, err
	}
	if _, err := s.findMessage(ctx, conversationID, messageID); err != nil {
		return nil, false, err
	}
	r := &msgmodel.Receipt{
		ID:             primitive.NewObjectID().Hex(),
		MessageID:      messageID,
		ConversationID: conversationID,
		UserID:         callerID,
		ReadAt:         s.now().UTC(),
	}
	created, err := s.repo.UpsertReceipt(ctx, r)
	if err != nil {
		return nil, false, errs.WrapMsg(err, "upsert receipt", "message", messageID)
	}
	if !created {
		// 已确认过，返回第一次的回执
		rs, err := s.repo.ListReceipts(ctx, messageID)
		if err != nil {
			return nil, false, errs.WrapMsg(err, "list receipts", "message", messageID)
		}
		for i := range rs {
			if rs[i].UserID == callerID {
				return &rs[i], false, nil
			}
		}
	}
	return r, created, nil
}

func (s *Service) Receipts(ctx context.Context, callerID, conversationID, messageID string) ([]msgmodel.Receipt, error) {
	if err := s.requireMember(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	if _, err := s.findMessage(ctx, conversationID, messageID); err != nil {
		return nil, err
	}
	rs, err := s.repo.ListReceipts(ctx, messageID)
	if err != nil {
		return nil, errs.WrapMsg(err, "list receipts", "message", messageID)
	}
	return rs, nil
}
