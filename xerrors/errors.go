// Package xerrors 定义区间树服务的错误分类与业务码，以及到 HTTP 状态码的映射。
package xerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType 错误的大类，决定 HTTP 状态码。
type ErrorType uint

const (
	ErrUnknown ErrorType = iota
	ErrInternal
	ErrInvalidArg
	ErrNotFound
	ErrAlreadyExists
)

func (t ErrorType) String() string {
	names := [...]string{"Unknown", "Internal", "InvalidArg", "NotFound", "AlreadyExists"}
	if int(t) < len(names) {
		return names[t]
	}
	return "Unknown"
}

// Error 带分类和业务码的错误。
// 业务码前三位与 HTTP 状态码一致，后三位区分具体原因，例如 404101 表示树不存在。
type Error struct {
	Type    ErrorType `json:"type"`
	Code    int       `json:"code"`
	Message string    `json:"message"` // 对外展示
	Detail  string    `json:"detail"`  // 调用方如何修正
	Cause   error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %d: %s (Cause: %v)", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %d: %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New 创建错误。哨兵错误在包级别创建一次，调用方用 fmt.Errorf("%w: ...") 附加现场信息。
func New(errType ErrorType, code int, message string, detail string, cause error) *Error {
	return &Error{Type: errType, Code: code, Message: message, Detail: detail, Cause: cause}
}

// HTTPStatus 返回错误分类对应的 HTTP 状态码。
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case ErrInvalidArg:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromError 沿错误链查找第一个 *Error。
func FromError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatusOf 返回任意错误对应的 HTTP 状态码，非 *Error 一律视为 500。
// 调用方据此区分被拒绝的请求 (4xx) 与服务端故障 (5xx)。
func HTTPStatusOf(err error) int {
	if e, ok := FromError(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
