package safe

import (
	"fmt"
	"reflect"

	"PPChat/logger"
	"PPChat/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required dependencies during construction.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// DefaultString returns the dereferenced value of a string pointer,
// or the fallback if the pointer is nil.
func DefaultString(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// DefaultInt returns v when positive, otherwise the fallback.
func DefaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Go starts a new goroutine that recovers from panic,
// so that panics in background workers don't crash the entire program.
func Go(name string, f func()) {
	go func() {
		defer Recover(name)
		f()
	}()
}

// Recover logs a recovered panic; call it deferred.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered", zap.String("goroutine", name), zap.Error(errs.ErrPanic(r)))
	}
}
