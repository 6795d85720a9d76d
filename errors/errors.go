// Package errors 提供带错误码的应用错误类型
//
// Saga 子系统的错误分类（由上层决定处理策略）：
//   - 校验错误：启动前同步拒绝，永不重试
//   - 参与方业务失败：随结果消息传播，驱动补偿，不自动重试
//   - 瞬时基础设施错误：SERVICE_UNAVAILABLE，可由调用方重试
//   - 补偿失败：记录并升级，不自动循环重试
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 预定义错误代码
const (
	// 通用错误代码
	ErrCodeInternal           ErrorCode = "SYSTEM_ERROR"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"

	// 参与方业务错误代码（随结果消息传播，驱动补偿）
	ErrCodeOutOfStock        ErrorCode = "OUT_OF_STOCK"
	ErrCodeCouponAlreadyUsed ErrorCode = "COUPON_ALREADY_USED"
	ErrCodeCouponNotFound    ErrorCode = "COUPON_NOT_FOUND"
	ErrCodeInsufficientPoint ErrorCode = "INSUFFICIENT_POINT"

	// Saga 终态失败代码
	ErrCodeSagaTimeout   ErrorCode = "SAGA_TIMEOUT"
	ErrCodePaymentFailed ErrorCode = "PAYMENT_FAILED"
)

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) *AppError {
	return &AppError{
		code:    code,
		message: message,
	}
}

// WrapError 包装错误
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	return &AppError{
		code:    code,
		message: message,
		cause:   err,
	}
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Code 获取错误代码
func (e *AppError) Code() ErrorCode {
	return e.code
}

// Message 获取错误消息
func (e *AppError) Message() string {
	return e.message
}

// Cause 获取原始错误
func (e *AppError) Cause() error {
	return e.cause
}

// Is 检查是否为指定类型的错误（按错误码匹配）
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}

	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}

	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}

	return false
}

// Unwrap 解包错误（支持 errors.Unwrap）
func (e *AppError) Unwrap() error {
	return e.cause
}

// 预定义错误变量
var (
	ErrInternal           = NewError(ErrCodeInternal, "internal system error")
	ErrNotFound           = NewError(ErrCodeNotFound, "resource not found")
	ErrTimeout            = NewError(ErrCodeTimeout, "operation timed out")
	ErrServiceUnavailable = NewError(ErrCodeServiceUnavailable, "service unavailable")
	ErrValidation         = NewError(ErrCodeValidation, "validation failed")
)

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsValidation 检查是否为验证错误
func IsValidation(err error) bool {
	return IsErrorCode(err, ErrCodeValidation)
}

// IsServiceUnavailable 检查是否为服务不可用错误
//
// 同步协作方调用（熔断器打开、远程超时）返回该类错误，
// 调用方可据此重试而不触发误补偿。
func IsServiceUnavailable(err error) bool {
	return IsErrorCode(err, ErrCodeServiceUnavailable)
}

// IsErrorCode 检查是否为指定错误代码
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}

	return false
}

// GetErrorCode 获取错误代码
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}

	return ErrCodeInternal
}
