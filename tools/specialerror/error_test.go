package specialerror

import (
	"errors"
	"testing"

	"PPChat/tools/errs"
)

var errDup = errors.New("dup key")

func TestErrCode(t *testing.T) {
	if err := AddErrHandler(func(err error) *errs.CodeError {
		if errors.Is(err, errDup) {
			return errs.NewCodeError(errs.ConflictError, "duplicate")
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if ce := ErrCode(errs.WrapMsg(errDup, "insert")); ce == nil || ce.Code != errs.ConflictError {
		t.Fatalf("want conflict, got %v", ce)
	}
	if ce := ErrCode(errs.NotFound("nope")); ce == nil || ce.Code != errs.NotFoundError {
		t.Fatalf("want not found, got %v", ce)
	}
	if ce := ErrCode(errors.New("boom")); ce != nil {
		t.Fatalf("unexpected code %v", ce)
	}
	if AddErrHandler(nil) == nil {
		t.Fatal("nil handler accepted")
	}
}
