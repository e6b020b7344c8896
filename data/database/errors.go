package database

import (
	"errors"

	"PPChat/tools/errs"
	"PPChat/tools/specialerror"
)

// 存储层统一的哨兵错误，mongo 与内存实现都返回它们
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

func IsNotFound(err error) bool  { return errors.Is(err, ErrNotFound) }
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }

func init() {
	_ = specialerror.AddErrHandler(func(err error) *errs.CodeError {
		switch {
		case IsNotFound(err):
			return errs.NewCodeError(errs.NotFoundError, "Not found")
		case IsDuplicate(err):
			return errs.NewCodeError(errs.ConflictError, "Already exists")
		}
		return nil
	})
}
