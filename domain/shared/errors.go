/*
Package shared - 领域层共享错误定义

领域层定义哨兵错误，用于 errors.Is() 判断；DomainError 在创建时捕获堆栈，
打印日志时才格式化。领域错误不包含 HTTP 状态码等传输层概念。
*/
package shared

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ============================================================================
// 哨兵错误 (Sentinel Errors)
// ============================================================================

var (
	// ErrNotFound 资源未找到
	ErrNotFound = errors.New("not found")

	// ErrValidation 命令或实体校验失败，在任何状态变更之前抛出
	ErrValidation = errors.New("validation failed")

	// ErrStateTransition 非法状态迁移，状态与版本均保持不变
	ErrStateTransition = errors.New("illegal state transition")

	// ErrConcurrencyConflict 乐观锁版本冲突（更新影响行数为 0），本层不重试
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDuplicate 唯一约束冲突
	ErrDuplicate = errors.New("duplicate")

	// ErrChannelExecution 外部渠道调用失败，记录后转为可重试状态
	ErrChannelExecution = errors.New("channel execution failed")
)

// DomainError 领域错误 - 携带业务上下文和堆栈的结构化错误
type DomainError struct {
	// Err 底层哨兵错误
	Err error

	// Entity 发生错误的实体名称（如 "payment_order", "channel_request"）
	Entity string

	// Message 人类可读的错误描述
	Message string

	// Field 可选：校验失败的字段名
	Field string

	// Cause 可选：底层原因（如渠道传输错误）
	Cause error

	stack []uintptr
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap 同时暴露哨兵错误与底层原因
func (e *DomainError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// Stack 按需格式化堆栈
func (e *DomainError) Stack() []string {
	return FormatStack(e.stack)
}

// CaptureStack 捕获当前调用栈
// skip: 跳过的帧数（通常为 3：Callers, CaptureStack, NewXxxError）
func CaptureStack(skip int) []uintptr {
	var pcs [32]uintptr
	n := runtime.Callers(skip, pcs[:])
	return pcs[:n]
}

// FormatStack 格式化堆栈帧，过滤 runtime 内部帧，最多返回 10 帧
func FormatStack(stack []uintptr) []string {
	if len(stack) == 0 {
		return nil
	}

	frames := runtime.CallersFrames(stack)
	var result []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			result = append(result, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more || len(result) >= 10 {
			break
		}
	}
	return result
}

func NewNotFoundError(entity string) error {
	return &DomainError{
		Err:     ErrNotFound,
		Entity:  entity,
		Message: entity + " not found",
		stack:   CaptureStack(3),
	}
}

func NewValidationError(entity, field, reason string) error {
	return &DomainError{
		Err:     ErrValidation,
		Entity:  entity,
		Field:   field,
		Message: reason,
		stack:   CaptureStack(3),
	}
}

func NewStateTransitionError(entity, from, to string) error {
	return &DomainError{
		Err:     ErrStateTransition,
		Entity:  entity,
		Field:   "status",
		Message: fmt.Sprintf("%s cannot transition from %s to %s", entity, displayState(from), to),
		stack:   CaptureStack(3),
	}
}

func NewConcurrencyConflictError(entity, key string, version int) error {
	return &DomainError{
		Err:     ErrConcurrencyConflict,
		Entity:  entity,
		Field:   "version",
		Message: fmt.Sprintf("%s %s was modified concurrently (expected version %d)", entity, key, version),
		stack:   CaptureStack(3),
	}
}

func NewDuplicateError(entity, key string) error {
	return &DomainError{
		Err:     ErrDuplicate,
		Entity:  entity,
		Message: fmt.Sprintf("%s %s already exists", entity, key),
		stack:   CaptureStack(3),
	}
}

func NewChannelExecutionError(channel string, cause error) error {
	return &DomainError{
		Err:     ErrChannelExecution,
		Entity:  "channel",
		Field:   channel,
		Message: "channel " + channel + " call failed",
		Cause:   cause,
		stack:   CaptureStack(3),
	}
}

// NewDomainError 供子领域包构造带原因的领域错误
func NewDomainError(sentinel error, entity, field, message string, cause error) error {
	return &DomainError{
		Err:     sentinel,
		Entity:  entity,
		Field:   field,
		Message: message,
		Cause:   cause,
		stack:   CaptureStack(3),
	}
}

func displayState(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

// Stacker 可提供堆栈的错误接口，供 API 层统一提取堆栈
type Stacker interface {
	Stack() []string
}
