package timeout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersaga/logging"
)

// TestMemoryIndex_DueAndRemove 测试索引的范围查询与移除
func TestMemoryIndex_DueAndRemove(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()
	now := time.Now()

	require.NoError(t, index.Add(ctx, "saga-late", now.Add(-2*time.Minute)))
	require.NoError(t, index.Add(ctx, "saga-later", now.Add(-1*time.Minute)))
	require.NoError(t, index.Add(ctx, "saga-pending", now.Add(10*time.Minute)))

	due, err := index.Due(ctx, now)
	require.NoError(t, err)
	// 按截止时间升序
	assert.Equal(t, []string{"saga-late", "saga-later"}, due)

	require.NoError(t, index.Remove(ctx, due...))
	assert.Equal(t, 1, index.Size())

	due, err = index.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

// TestMemoryIndex_AddOverwrites 测试重复注册覆盖截止时间
func TestMemoryIndex_AddOverwrites(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()
	now := time.Now()

	require.NoError(t, index.Add(ctx, "saga-1", now.Add(-time.Minute)))
	require.NoError(t, index.Add(ctx, "saga-1", now.Add(time.Hour)))

	due, err := index.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
	assert.Equal(t, 1, index.Size())
}

// TestMonitor_Tick 测试一轮扫描：到期的交给处理函数并移除
func TestMonitor_Tick(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()

	var mu sync.Mutex
	var handled [][]string
	monitor, err := NewMonitor(MonitorConfig{
		Index: index,
		Handler: func(ctx context.Context, sagaIDs []string) error {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, sagaIDs)
			return nil
		},
		Logger: logging.NewNoopLogger(),
	})
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, index.Add(ctx, "saga-due", now.Add(-time.Minute)))
	require.NoError(t, index.Add(ctx, "saga-future", now.Add(time.Hour)))

	monitor.Tick(ctx)

	mu.Lock()
	require.Len(t, handled, 1)
	assert.Equal(t, []string{"saga-due"}, handled[0])
	mu.Unlock()

	// 已处理的从索引移除，未到期的保留
	assert.Equal(t, 1, index.Size())

	// 下一轮空扫，不再触发处理函数
	monitor.Tick(ctx)
	mu.Lock()
	assert.Len(t, handled, 1)
	mu.Unlock()
}

// TestMonitor_RemovesEvenIfHandlerFails 测试处理失败时仍然移除，
// 避免反复重扫已终态的 Saga
func TestMonitor_RemovesEvenIfHandlerFails(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()

	monitor, err := NewMonitor(MonitorConfig{
		Index: index,
		Handler: func(ctx context.Context, sagaIDs []string) error {
			return assert.AnError
		},
		Logger: logging.NewNoopLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, index.Add(ctx, "saga-1", time.Now().Add(-time.Minute)))
	monitor.Tick(ctx)
	assert.Equal(t, 0, index.Size())
}

// TestMonitor_StartStop 测试后台扫描的启动与停止
func TestMonitor_StartStop(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()

	var mu sync.Mutex
	ticks := 0
	monitor, err := NewMonitor(MonitorConfig{
		Index:    index,
		Interval: 10 * time.Millisecond,
		Handler: func(ctx context.Context, sagaIDs []string) error {
			mu.Lock()
			defer mu.Unlock()
			ticks++
			return nil
		},
		Logger: logging.NewNoopLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, index.Add(ctx, "saga-1", time.Now().Add(-time.Minute)))

	require.NoError(t, monitor.Start(ctx))
	assert.Error(t, monitor.Start(ctx), "double start must fail")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, monitor.Stop())
	require.NoError(t, monitor.Stop(), "double stop is a no-op")
}
