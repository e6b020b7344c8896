package specialerror

import (
	"sync"

	"PPChat/tools/errs"
)

// 存储层等下游把自己的错误翻译成业务错误码，比如唯一索引冲突 -> Conflict
var (
	mu       sync.RWMutex
	handlers []func(err error) *errs.CodeError
)

func AddErrHandler(h func(err error) *errs.CodeError) error {
	if h == nil {
		return errs.New("nil handler")
	}
	mu.Lock()
	defer mu.Unlock()
	handlers = append(handlers, h)
	return nil
}

// ErrCode 先看错误链上是否已是 CodeError，再依次询问注册的 handler
func ErrCode(err error) *errs.CodeError {
	if err == nil {
		return nil
	}
	if ce, ok := errs.As(err); ok {
		return ce
	}
	mu.RLock()
	defer mu.RUnlock()
	for _, h := range handlers {
		if ce := h(err); ce != nil {
			return ce
		}
	}
	return nil
}
