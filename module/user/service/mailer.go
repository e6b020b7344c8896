package service

import (
	"context"
	"time"

	"PPChat/logger"
	usermodel "PPChat/module/user/model"

	"go.uber.org/zap"
)

type OTPMail struct {
	To       string
	Name     string
	Type     usermodel.OTPType
	Code     string
	ExpiryAt time.Time
}

// Mailer 验证码投递；真正的邮件通道由部署方提供
type Mailer interface {
	SendOTP(ctx context.Context, m OTPMail) error
}

// LogMailer 只打日志，本地开发用
type LogMailer struct{}

func (LogMailer) SendOTP(ctx context.Context, m OTPMail) error {
	logger.Info("otp issued",
		zap.String("to", m.To),
		zap.String("type", string(m.Type)),
		zap.String("code", m.Code),
		zap.Time("expiryAt", m.ExpiryAt))
	return nil
}
