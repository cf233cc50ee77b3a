package errors

import (
	"errors"
	"fmt"
)

// Error JIT 编译错误
//
// Method 和 BCI 由上层在错误向外传播时补充；帧模型本身不知道自己在编译哪个方法。
type Error struct {
	Code   string
	Class  Class
	Method string
	BCI    int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Method != "" {
		msg += " " + e.Method
		if e.BCI >= 0 {
			msg += fmt.Sprintf("@%d", e.BCI)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 使用错误码的默认类别创建错误
func New(code string, err error) *Error {
	return &Error{Code: code, Class: ClassOf(code), BCI: -1, Err: err}
}

// Invariantf 创建不变量错误
func Invariantf(code string, format string, args ...interface{}) *Error {
	return &Error{Code: code, Class: ClassInvariant, BCI: -1, Err: fmt.Errorf(format, args...)}
}

// Resourcef 创建资源耗尽错误
func Resourcef(code string, format string, args ...interface{}) *Error {
	return &Error{Code: code, Class: ClassResource, BCI: -1, Err: fmt.Errorf(format, args...)}
}

// Wrap 为错误补充方法名与字节码位置
// 非 *Error 的错误按不变量错误处理
func Wrap(err error, method string, bci int) error {
	if err == nil {
		return nil
	}
	var je *Error
	if errors.As(err, &je) {
		out := *je
		if out.Method == "" {
			out.Method = method
		}
		if out.BCI < 0 {
			out.BCI = bci
		}
		return &out
	}
	return &Error{Code: "", Class: ClassInvariant, Method: method, BCI: bci, Err: err}
}

// IsInvariant 判断是否为不变量错误
func IsInvariant(err error) bool {
	var je *Error
	return errors.As(err, &je) && je.Class == ClassInvariant
}

// IsResource 判断是否为资源耗尽错误
func IsResource(err error) bool {
	var je *Error
	return errors.As(err, &je) && je.Class == ClassResource
}

// CodeOf 返回错误码，非 JIT 错误返回空串
func CodeOf(err error) string {
	var je *Error
	if errors.As(err, &je) {
		return je.Code
	}
	return ""
}
