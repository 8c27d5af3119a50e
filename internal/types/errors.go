package types

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码
type ErrorCode string

const (
	ErrCodeUnknown          ErrorCode = "UNKNOWN_ERROR"
	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"

	// 问数流程相关错误码
	ErrCodeParse             ErrorCode = "PARSE_ERROR"
	ErrCodeRetrievalDegraded ErrorCode = "RETRIEVAL_DEGRADED"
	ErrCodeStageFailed       ErrorCode = "STAGE_FAILED"
	ErrCodeStageTimeout      ErrorCode = "STAGE_TIMEOUT"
	ErrCodeLineage           ErrorCode = "LINEAGE_ERROR"
	ErrCodeIllegalTransition ErrorCode = "ILLEGAL_TRANSITION"
	ErrCodeCancelled         ErrorCode = "CANCELLED"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is 同错误码视为同一类错误，配合下方预定义错误使用 errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewAppError 创建应用错误
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewAppErrorWithDetails 创建带详情的应用错误
func NewAppErrorWithDetails(code ErrorCode, message, details string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAppErrorWithCause 创建带原因的应用错误
func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	e := &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// 预定义错误，仅用于 errors.Is 判断类别
var (
	ErrInvalidParameter  = NewAppError(ErrCodeInvalidParameter, "参数错误")
	ErrNotFound          = NewAppError(ErrCodeNotFound, "记录不存在")
	ErrParse             = NewAppError(ErrCodeParse, "快捷指令解析失败")
	ErrRetrievalDegraded = NewAppError(ErrCodeRetrievalDegraded, "语义检索不可用，已降级为关键词检索")
	ErrStageFailure      = NewAppError(ErrCodeStageFailed, "阶段执行失败")
	ErrStageTimeout      = NewAppError(ErrCodeStageTimeout, "阶段执行超时")
	ErrLineage           = NewAppError(ErrCodeLineage, "记录关联关系无效")
	ErrIllegalTransition = NewAppError(ErrCodeIllegalTransition, "非法的阶段流转")
	ErrStopped           = NewAppError(ErrCodeCancelled, "用户已停止")
)

// StageFailure 创建阶段失败错误
func StageFailure(stage, message string, cause error) *AppError {
	e := NewAppErrorWithCause(ErrCodeStageFailed, message, cause)
	if e.Details == "" {
		e.Details = stage
	} else {
		e.Details = stage + ": " + e.Details
	}
	return e
}

// IsAppError 检查是否为应用错误
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetErrorCode 获取错误码
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeUnknown
}

// Message 面向用户的错误信息，AppError 只取 Message 与 Details，不带错误码前缀
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Details != "" {
			return appErr.Message + ": " + appErr.Details
		}
		return appErr.Message
	}
	return err.Error()
}
