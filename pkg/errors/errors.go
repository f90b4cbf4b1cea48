/*
Package errors - 应用错误码

领域层只暴露哨兵错误；FromDomainError 把它们翻译成稳定的错误码，
HTTP 状态码映射留在 API 层。
*/
package errors

import (
	"context"
	"errors"
	"fmt"

	"paytx/domain/payment"
	"paytx/domain/shared"
)

// ErrorCode 错误码
type ErrorCode string

const (
	// 通用错误码
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeBadRequest     ErrorCode = "BAD_REQUEST"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeConflict       ErrorCode = "CONFLICT"
	CodeTooManyRequest ErrorCode = "TOO_MANY_REQUESTS"
	CodeValidation     ErrorCode = "VALIDATION_ERROR"
	CodeUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"
	CodeTimeout        ErrorCode = "TIMEOUT"

	// 业务错误码
	CodeOrderNotFound     ErrorCode = "ORDER_NOT_FOUND"
	CodeOrderIncomplete   ErrorCode = "ORDER_INCOMPLETE"
	CodeDuplicateOrder    ErrorCode = "DUPLICATE_ORDER"
	CodeInvalidOrderState ErrorCode = "INVALID_ORDER_STATE"
	CodeConcurrentModify  ErrorCode = "CONCURRENT_MODIFICATION"
	CodeChannelFailed     ErrorCode = "CHANNEL_FAILED"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New 创建新错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func BadRequest(message string) *AppError { return New(CodeBadRequest, message) }

func NotFound(message string) *AppError { return New(CodeNotFound, message) }

func Unavailable(err error, message string) *AppError { return Wrap(err, CodeUnavailable, message) }

// Is 检查是否为特定错误码
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// FromDomainError 将领域错误映射为应用错误。具体原因先于分类判断。
func FromDomainError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	msg := domainMessage(err)
	switch {
	case errors.Is(err, payment.ErrOrderIncomplete):
		return Wrap(err, CodeOrderIncomplete, msg)
	case errors.Is(err, payment.ErrNotificationExists), errors.Is(err, payment.ErrBounceNotAllowed),
		errors.Is(err, payment.ErrRequestFinished):
		return Wrap(err, CodeInvalidOrderState, msg)
	case errors.Is(err, shared.ErrNotFound):
		return Wrap(err, CodeOrderNotFound, msg)
	case errors.Is(err, shared.ErrValidation):
		return Wrap(err, CodeValidation, msg)
	case errors.Is(err, shared.ErrStateTransition):
		return Wrap(err, CodeInvalidOrderState, msg)
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return Wrap(err, CodeConcurrentModify, msg)
	case errors.Is(err, shared.ErrDuplicate):
		return Wrap(err, CodeDuplicateOrder, msg)
	case errors.Is(err, shared.ErrChannelExecution):
		return Wrap(err, CodeChannelFailed, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, CodeTimeout, "request timed out")
	default:
		return Wrap(err, CodeInternal, "internal server error")
	}
}

// domainMessage 取最内层 DomainError 的消息，避免把包装链暴露给调用方。
func domainMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
