package handlers

import (
	"context"
	"encoding/json"
	"strings"

	msgsvc "PPChat/module/message/service"
	"PPChat/service/chat"
	"PPChat/tools/errs"
)

// SendHandler 落库后广播给房间内所有会话（含发送者）
type SendHandler struct {
	registry *chat.Registry
	messages Messages
}

func (h *SendHandler) Event() string { return chat.EventSend }

func (h *SendHandler) Handle(ctx context.Context, s *chat.Session, data json.RawMessage) error {
	req, err := chat.DecodeData[chat.SendMessageReq](data)
	if err != nil {
		return err
	}
	convID := strings.TrimSpace(req.ConversationID)
	if convID == "" || strings.TrimSpace(req.Content) == "" {
		return errs.Validation("conversationId and content are required")
	}

	// 发送瞬间房间里在线的其他用户视为已读
	readBy := make([]string, 0)
	for _, uid := range h.registry.RoomUsers(convID) {
		if uid != s.UserID {
			readBy = append(readBy, uid)
		}
	}

	msg, dup, err := h.messages.SendOnce(ctx, msgsvc.SendReq{
		ConversationID:  convID,
		SenderID:        s.UserID,
		Content:         req.Content,
		ReadBy:          readBy,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		return err
	}

	out := chat.NewMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         chat.SenderRef{ID: s.UserID, Username: s.Username},
		Content:        msg.Content,
		ReadBy:         msg.ReadBy,
		CreatedAt:      msg.CreatedAt,

		ClientMessageID: req.ClientMessageID,
	}
	if out.ReadBy == nil {
		out.ReadBy = []string{}
	}
	// 重发：房间已经收到过，只回给发送者
	if dup {
		s.Emit(chat.EventNewMessage, out)
		return nil
	}
	if _, err := h.registry.Broadcast(convID, "", chat.EventNewMessage, out); err != nil {
		return err
	}
	// 发送者还没 join 时也要收到自己的消息
	if !s.InRoom(convID) {
		s.Emit(chat.EventNewMessage, out)
	}
	return nil
}

// MarkReadHandler 显式已读：落回执，再通知房间内其他会话
type MarkReadHandler struct {
	registry *chat.Registry
	messages Messages
}

func (h *MarkReadHandler) Event() string { return chat.EventMarkRead }

func (h *MarkReadHandler) Handle(ctx context.Context, s *chat.Session, data json.RawMessage) error {
	req, err := chat.DecodeData[chat.MarkReadReq](data)
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.ConversationID) == "" || strings.TrimSpace(req.MessageID) == "" {
		return errs.Validation("conversationId and messageId are required")
	}
	rc, _, err := h.messages.Acknowledge(ctx, s.UserID, req.ConversationID, req.MessageID)
	if err != nil {
		return err
	}
	_, err = h.registry.Broadcast(req.ConversationID, s.ID, chat.EventRead, chat.MessageRead{
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		UserID:         s.UserID,
		ReadAt:         rc.ReadAt,
	})
	return err
}
