package service

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind 是对外暴露的错误分类。
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindRateLimited         ErrorKind = "rate_limited"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindInvalidInput        ErrorKind = "invalid_input"
	KindPersistenceFailure  ErrorKind = "persistence_failure"
	KindConflict            ErrorKind = "conflict"
)

// ChatError 是业务层返回给 handler 的唯一错误类型。
// Message 可以直接展示给用户；Err 只用于日志，不会出现在响应中。
// AIResponse 非空表示模型已经生成了回复但没有保存。
type ChatError struct {
	Kind       ErrorKind
	Message    string
	AIResponse string
	Err        error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// HTTPStatus 返回该错误对应的 HTTP 状态码。
func (e *ChatError) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AsChatError 从错误链中取出 *ChatError。
func AsChatError(err error) (*ChatError, bool) {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func newError(kind ErrorKind, msg string, err error) *ChatError {
	return &ChatError{Kind: kind, Message: msg, Err: err}
}

func invalidInput(format string, args ...interface{}) *ChatError {
	return &ChatError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}
