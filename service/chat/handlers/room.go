package handlers

import (
	"context"
	"encoding/json"

	"PPChat/logger"
	"PPChat/service/chat"

	"go.uber.org/zap"
)

// JoinHandler 成员才能进入房间
type JoinHandler struct {
	registry *chat.Registry
	members  Members
}

func (h *JoinHandler) Event() string { return chat.EventJoin }

func (h *JoinHandler) Handle(ctx context.Context, s *chat.Session, data json.RawMessage) error {
	convID, err := chat.ConversationID(data)
	if err != nil {
		return err
	}
	if err := h.members.RequireMember(ctx, convID, s.UserID); err != nil {
		return err
	}
	h.registry.Join(convID, s)
	logger.Debug("joined conversation", zap.String("session", s.ID), zap.String("conversation", convID))
	return nil
}

type LeaveHandler struct {
	registry *chat.Registry
}

func (h *LeaveHandler) Event() string { return chat.EventLeave }

func (h *LeaveHandler) Handle(_ context.Context, s *chat.Session, data json.RawMessage) error {
	convID, err := chat.ConversationID(data)
	if err != nil {
		return err
	}
	h.registry.Leave(convID, s)
	return nil
}

// TypingHandler 只转发给房间内其他会话，不落库
type TypingHandler struct {
	registry *chat.Registry
	members  Members
}

func (h *TypingHandler) Event() string { return chat.EventTyping }

func (h *TypingHandler) Handle(ctx context.Context, s *chat.Session, data json.RawMessage) error {
	req, err := chat.DecodeData[chat.TypingReq](data)
	if err != nil {
		return err
	}
	convID, err := chat.ConversationID(data)
	if err != nil {
		return err
	}
	// 已在房间内说明 join 时校验过成员身份
	if !s.InRoom(convID) {
		if err := h.members.RequireMember(ctx, convID, s.UserID); err != nil {
			return err
		}
	}
	_, err = h.registry.Broadcast(convID, s.ID, chat.EventUserTyping, chat.UserTyping{
		ConversationID: convID,
		IsTyping:       req.IsTyping,
		Username:       s.Username,
		UserID:         s.UserID,
	})
	return err
}
