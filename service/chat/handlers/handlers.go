package handlers

import (
	"context"

	msgmodel "PPChat/module/message/model"
	msgsvc "PPChat/module/message/service"
	"PPChat/service/chat"
)

// Members 会话成员校验
type Members interface {
	RequireMember(ctx context.Context, conversationID, userID string) error
}

// Messages 落库与已读回执
type Messages interface {
	SendOnce(ctx context.Context, req msgsvc.SendReq) (*msgmodel.Message, bool, error)
	Acknowledge(ctx context.Context, callerID, conversationID, messageID string) (*msgmodel.Receipt, bool, error)
}

// Register 注册全部网关事件
func Register(s *chat.Server, members Members, messages Messages) {
	reg := s.Registry()
	s.Dispatcher().Register(
		&JoinHandler{registry: reg, members: members},
		&LeaveHandler{registry: reg},
		&SendHandler{registry: reg, messages: messages},
		&TypingHandler{registry: reg, members: members},
		&MarkReadHandler{registry: reg, messages: messages},
	)
}
