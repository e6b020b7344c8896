package errs

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// 错误分类码，数值直接对应 HTTP 状态
const (
	ValidationError     = http.StatusBadRequest
	AuthenticationError = http.StatusUnauthorized
	AuthorizationError  = http.StatusForbidden
	NotFoundError       = http.StatusNotFound
	ConflictError       = http.StatusConflict
	ServerError         = http.StatusInternalServerError
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"message"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// Wrap 附带调用栈
func (e *CodeError) Wrap() error {
	return errors.WithStack(e)
}

func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	return errors.WithStack(e.WithDetail(toString(msg, kv)))
}

// Is 同 Code 即视为同一类错误
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

func Validation(msg string) error      { return NewCodeError(ValidationError, msg).Wrap() }
func Unauthenticated(msg string) error { return NewCodeError(AuthenticationError, msg).Wrap() }
func Forbidden(msg string) error       { return NewCodeError(AuthorizationError, msg).Wrap() }
func NotFound(msg string) error        { return NewCodeError(NotFoundError, msg).Wrap() }
func Conflict(msg string) error        { return NewCodeError(ConflictError, msg).Wrap() }
func Internal(msg string) error        { return NewCodeError(ServerError, msg).Wrap() }

// New 普通错误（带栈），kv 追加到消息后面
func New(msg string, kv ...any) error {
	return errors.New(toString(msg, kv))
}

// As 沿着 wrap 链取出 CodeError
func As(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// HasCode 判断错误链上是否带有指定分类
func HasCode(err error, code int) bool {
	ce, ok := As(err)
	return ok && ce.Code == code
}

// HTTPStatus 未分类错误一律 500
func HTTPStatus(err error) int {
	if ce, ok := As(err); ok {
		return ce.Code
	}
	return ServerError
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, toString(msg, kv))
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
