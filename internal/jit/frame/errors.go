package frame

import (
	"errors"
	"fmt"

	jerrors "github.com/tangzhangming/novajit/internal/errors"
)

// 帧模型错误，全部属于编译器不变量错误
var (
	ErrFrameOverflow     = errors.New("virtual stack overflow")
	ErrUnderflow         = errors.New("virtual stack underflow")
	ErrUnresolvableAlias = errors.New("register aliasing cannot be resolved")
	ErrMergeConflict     = errors.New("frames cannot be reconciled")
	ErrDepthMismatch     = errors.New("frame shapes differ")
	ErrPinnedSpill       = errors.New("spilling a pinned slot")
	ErrNoRegister        = errors.New("no register available")
	ErrInconsistent      = errors.New("register index out of sync with slots")
	ErrVerify            = errors.New("conformed frames disagree")
	ErrKindMismatch      = errors.New("unexpected slot kind")
)

func fail(code string, sentinel error, format string, args ...interface{}) error {
	return jerrors.New(code, fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)))
}
