package service

import (
	"context"
	"time"

	"PPChat/data/database"
	"PPChat/logger"
	chatmodel "PPChat/module/chat/model"
	msgmodel "PPChat/module/message/model"
	notimodel "PPChat/module/notification/model"
	usermodel "PPChat/module/user/model"
	"PPChat/service/events"
	"PPChat/tools/errs"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Repository interface {
	FindUsersByIDs(ctx context.Context, ids []string) ([]usermodel.Summary, error)
	FindConversations(ctx context.Context, ids []string) ([]chatmodel.Conversation, error)
	ListMembers(ctx context.Context, conversationID string) ([]chatmodel.Member, error)
	CountMembers(ctx context.Context, conversationIDs []string) (map[string]int64, error)

	InsertNotifications(ctx context.Context, ns []notimodel.Notification) (int, error)
	ListNotifications(ctx context.Context, f notimodel.Filter, skip, limit int) ([]notimodel.Notification, error)
	CountNotifications(ctx context.Context, f notimodel.Filter) (int64, error)
	FindNotification(ctx context.Context, id string) (*notimodel.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkNotificationsRead(ctx context.Context, f notimodel.Filter) (notimodel.UpdateResult, error)
	DeleteNotifications(ctx context.Context, f notimodel.Filter) (int64, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// FanOut 给会话里除发送者、已读者之外的每个成员写一条未读通知，被 @ 的成员类型记为 mention。
// (message_id, recipient_id) 唯一，重复投递只会插入缺的那部分。
func (s *Service) FanOut(ctx context.Context, ev msgmodel.Created) (int, error) {
	members, err := s.repo.ListMembers(ctx, ev.ConversationID)
	if err != nil {
		return 0, errs.WrapMsg(err, "list members", "conversation", ev.ConversationID)
	}
	skip := make(map[string]struct{}, len(ev.ReadBy)+1)
	skip[ev.SenderID] = struct{}{}
	for _, id := range ev.ReadBy {
		skip[id] = struct{}{}
	}
	m := &msgmodel.Message{Content: ev.Content}
	preview := m.Preview()
	recipients := make([]string, 0, len(members))
	for _, mem := range members {
		if _, ok := skip[mem.UserID]; !ok {
			recipients = append(recipients, mem.UserID)
		}
	}
	if len(recipients) == 0 {
		return 0, nil
	}
	hit, err := s.mentioned(ctx, ev.Content, recipients)
	if err != nil {
		return 0, err
	}
	now := s.now().UTC()
	ns := make([]notimodel.Notification, 0, len(recipients))
	for _, uid := range recipients {
		typ := notimodel.TypeMessage
		if _, ok := hit[uid]; ok {
			typ = notimodel.TypeMention
		}
		ns = append(ns, notimodel.Notification{
			ID:             primitive.NewObjectID().Hex(),
			RecipientID:    uid,
			SenderID:       ev.SenderID,
			Type:           typ,
			ConversationID: ev.ConversationID,
			MessageID:      ev.MessageID,
			Content:        preview,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	n, err := s.repo.InsertNotifications(ctx, ns)
	if err != nil {
		return 0, errs.WrapMsg(err, "insert notifications", "message", ev.MessageID)
	}
	return n, nil
}

// HandleEvent 事件总线消费入口
func (s *Service) HandleEvent(ctx context.Context, ev events.Event) error {
	created, err := events.Decode[msgmodel.Created](ev)
	if err != nil {
		return err
	}
	n, err := s.FanOut(ctx, created)
	if err != nil {
		return err
	}
	logger.Debug("notifications fanned out",
		zap.String("message", created.MessageID),
		zap.String("conversation", created.ConversationID),
		zap.Int("inserted", n))
	return nil
}

func checkOwner(callerID, userID string) error {
	if userID == "" {
		return errs.Validation("userId is required")
	}
	if callerID != userID {
		return errs.Forbidden("Access denied")
	}
	return nil
}

type ListQuery struct {
	Limit      int
	Skip       int
	UnreadOnly bool
	Type       notimodel.Type
}

// List 最新在前，附发送者与会话信息
func (s *Service) List(ctx context.Context, callerID, userID string, q ListQuery) (*notimodel.Page, error) {
	if err := checkOwner(callerID, userID); err != nil {
		return nil, err
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	if q.Type != "" && !q.Type.Valid() {
		return nil, errs.Validation("invalid notification type")
	}
	f := notimodel.Filter{RecipientID: userID, UnreadOnly: q.UnreadOnly, Type: q.Type}
	rows, err := s.repo.ListNotifications(ctx, f, q.Skip, q.Limit)
	if err != nil {
		return nil, errs.WrapMsg(err, "list notifications", "user", userID)
	}
	total, err := s.repo.CountNotifications(ctx, f)
	if err != nil {
		return nil, errs.WrapMsg(err, "count notifications", "user", userID)
	}
	unread, err := s.repo.CountNotifications(ctx, notimodel.Filter{RecipientID: userID, UnreadOnly: true})
	if err != nil {
		return nil, errs.WrapMsg(err, "count unread", "user", userID)
	}
	views, err := s.views(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &notimodel.Page{
		Notifications: views,
		Total:         total,
		UnreadCount:   unread,
		HasMore:       int64(q.Skip+len(rows)) < total,
		CurrentPage:   q.Skip/q.Limit + 1,
	}, nil
}

func (s *Service) views(ctx context.Context, rows []notimodel.Notification) ([]notimodel.View, error) {
	out := make([]notimodel.View, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	senderIDs, convIDs := make([]string, 0), make([]string, 0)
	seenS, seenC := map[string]struct{}{}, map[string]struct{}{}
	for _, n := range rows {
		if _, ok := seenS[n.SenderID]; !ok && n.SenderID != "" {
			seenS[n.SenderID] = struct{}{}
			senderIDs = append(senderIDs, n.SenderID)
		}
		if _, ok := seenC[n.ConversationID]; !ok && n.ConversationID != "" {
			seenC[n.ConversationID] = struct{}{}
			convIDs = append(convIDs, n.ConversationID)
		}
	}
	senders, err := s.repo.FindUsersByIDs(ctx, senderIDs)
	if err != nil {
		return nil, errs.WrapMsg(err, "load senders")
	}
	convs, err := s.repo.FindConversations(ctx, convIDs)
	if err != nil {
		return nil, errs.WrapMsg(err, "load conversations")
	}
	counts, err := s.repo.CountMembers(ctx, convIDs)
	if err != nil {
		return nil, errs.WrapMsg(err, "count members")
	}
	senderBy := make(map[string]usermodel.Summary, len(senders))
	for _, u := range senders {
		senderBy[u.ID] = u
	}
	convBy := make(map[string]*notimodel.ConversationRef, len(convs))
	for _, c := range convs {
		convBy[c.ID] = &notimodel.ConversationRef{ID: c.ID, Name: c.Name, Type: c.Type, MemberCount: counts[c.ID]}
	}
	for _, n := range rows {
		v := notimodel.View{Notification: n, Conversation: convBy[n.ConversationID]}
		if u, ok := senderBy[n.SenderID]; ok {
			v.Sender = &u
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) MarkConversationRead(ctx context.Context, callerID, userID, conversationID string) (notimodel.UpdateResult, error) {
	if err := checkOwner(callerID, userID); err != nil {
		return notimodel.UpdateResult{}, err
	}
	if conversationID == "" {
		return notimodel.UpdateResult{}, errs.Validation("conversationId is required")
	}
	res, err := s.repo.MarkNotificationsRead(ctx, notimodel.Filter{RecipientID: userID, ConversationID: conversationID, UnreadOnly: true})
	if err != nil {
		return notimodel.UpdateResult{}, errs.WrapMsg(err, "mark conversation read", "conversation", conversationID)
	}
	return res, nil
}

// MarkRead 先校验归属再修改
func (s *Service) MarkRead(ctx context.Context, callerID, userID, notificationID string) (*notimodel.Notification, error) {
	if err := checkOwner(callerID, userID); err != nil {
		return nil, err
	}
	n, err := s.repo.FindNotification(ctx, notificationID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errs.NotFound("Notification not found")
		}
		return nil, errs.WrapMsg(err, "find notification", "id", notificationID)
	}
	if n.RecipientID != callerID {
		return nil, errs.Forbidden("Access denied")
	}
	if !n.IsRead {
		if err := s.repo.MarkNotificationRead(ctx, notificationID); err != nil {
			return nil, errs.WrapMsg(err, "mark notification read", "id", notificationID)
		}
		n.IsRead = true
		n.UpdatedAt = s.now().UTC()
	}
	return n, nil
}

func (s *Service) DeleteAllRead(ctx context.Context, callerID, userID string) (int64, error) {
	if err := checkOwner(callerID, userID); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteNotifications(ctx, notimodel.Filter{RecipientID: userID, OnlyRead: true})
	if err != nil {
		return 0, errs.WrapMsg(err, "delete read notifications", "user", userID)
	}
	return n, nil
}
