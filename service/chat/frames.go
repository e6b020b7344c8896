package chat

import (
	"encoding/json"
	"strings"

	"PPChat/tools/decode"
	"PPChat/tools/errs"
)

// ParseFrame 解析入站帧，event 不能为空
func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.Validation("Invalid frame")
	}
	f.Event = strings.TrimSpace(f.Event)
	if f.Event == "" {
		return nil, errs.Validation("Missing event")
	}
	return &f, nil
}

// EncodeFrame 编码出站帧
func EncodeFrame(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, errs.WrapMsg(err, "encode frame", "event", event)
		}
		raw = b
	}
	b, err := json.Marshal(Frame{Event: event, Data: raw})
	if err != nil {
		return nil, errs.WrapMsg(err, "encode frame", "event", event)
	}
	return b, nil
}

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

// ConversationID data 既可以是 "id" 也可以是 {"conversationId": "id"}
func ConversationID(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
		return "", errs.Validation("conversationId is required")
	}
	ref, err := decode.DecodeRaw[conversationRef](data)
	if err != nil || strings.TrimSpace(ref.ConversationID) == "" {
		return "", errs.Validation("conversationId is required")
	}
	return strings.TrimSpace(ref.ConversationID), nil
}

// DecodeData 事件负载解到结构体，宽松类型
func DecodeData[T any](data json.RawMessage) (*T, error) {
	v, err := decode.DecodeRaw[T](data)
	if err != nil {
		return nil, errs.Validation("Invalid payload")
	}
	return v, nil
}

// ErrorMessage 对外的错误文案；未分类错误不暴露细节
func ErrorMessage(err error, fallback string) string {
	if ce, ok := errs.As(err); ok && ce.Code != errs.ServerError {
		return ce.Msg
	}
	return fallback
}
