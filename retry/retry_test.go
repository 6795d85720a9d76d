package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDo_SucceedsFirstAttempt 测试首次即成功不重试
func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, Config{})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

// TestDo_SucceedsAfterRetries 测试失败后重试直至成功
func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("暂时失败")
		}
		return nil
	}, Config{MaxAttempts: 5, InitialDelay: time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestDo_ExhaustsAttempts 测试尝试耗尽后返回最后一次错误
func TestDo_ExhaustsAttempts(t *testing.T) {
	lastErr := errors.New("第三次失败")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return lastErr
		}
		return errors.New("前序失败")
	}, Config{MaxAttempts: 3, InitialDelay: time.Millisecond})

	assert.ErrorIs(t, err, lastErr)
	assert.Equal(t, 3, calls)
}

// TestDo_ContextCancelDuringBackoff 测试退避期间取消立即返回
func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		errCh <- Do(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("失败")
		}, Config{MaxAttempts: 10, InitialDelay: time.Minute})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("取消后未及时返回")
	}
}

// TestDo_ContextAlreadyCancelled 测试已取消的上下文不执行操作
func TestDo_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return nil
	}, Config{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

// TestConfig_Normalize 测试零值配置取默认值
func TestConfig_Normalize(t *testing.T) {
	cfg := Config{}.normalize()
	assert.Equal(t, DefaultConfig(), cfg)

	// 已设置的字段保持不变
	cfg = Config{MaxAttempts: 7}.normalize()
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, DefaultConfig().InitialDelay, cfg.InitialDelay)
}
