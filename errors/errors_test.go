package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNewError 测试创建错误
func TestNewError(t *testing.T) {
	err := NewError(ErrCodeOutOfStock, "variant 42 has no stock")

	assert.Equal(t, ErrCodeOutOfStock, err.Code())
	assert.Equal(t, "variant 42 has no stock", err.Message())
	assert.Nil(t, err.Cause())
	assert.Contains(t, err.Error(), "OUT_OF_STOCK")
}

// TestWrapError 测试包装错误
func TestWrapError(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := WrapError(cause, ErrCodeServiceUnavailable, "catalog lookup failed")

	assert.Equal(t, ErrCodeServiceUnavailable, err.Code())
	assert.Equal(t, cause, err.Cause())
	assert.ErrorIs(t, err, cause)

	// nil 输入返回 nil
	assert.Nil(t, WrapError(nil, ErrCodeInternal, "ignored"))
}

// TestIsErrorCode 测试错误码匹配
func TestIsErrorCode(t *testing.T) {
	err := NewError(ErrCodeCouponAlreadyUsed, "coupon 1 already used")

	assert.True(t, IsErrorCode(err, ErrCodeCouponAlreadyUsed))
	assert.False(t, IsErrorCode(err, ErrCodeOutOfStock))
	assert.False(t, IsErrorCode(nil, ErrCodeOutOfStock))

	// 包装后仍可识别
	wrapped := fmt.Errorf("executing coupon step: %w", err)
	assert.True(t, IsErrorCode(wrapped, ErrCodeCouponAlreadyUsed))
}

// TestIsServiceUnavailable 测试服务不可用判定
func TestIsServiceUnavailable(t *testing.T) {
	assert.True(t, IsServiceUnavailable(ErrServiceUnavailable))
	assert.True(t, IsServiceUnavailable(WrapError(stdErrors.New("open"), ErrCodeServiceUnavailable, "breaker open")))
	assert.False(t, IsServiceUnavailable(NewError(ErrCodeInsufficientPoint, "not enough points")))
}

// TestGetErrorCode 测试错误码提取
func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(stdErrors.New("plain")))
	assert.Equal(t, ErrCodeSagaTimeout, GetErrorCode(NewError(ErrCodeSagaTimeout, "no reply before deadline")))
}
