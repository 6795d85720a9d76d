package snowflake

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewGenerator_WorkerIDRange 测试工作节点 id 边界校验
func TestNewGenerator_WorkerIDRange(t *testing.T) {
	_, err := NewGenerator(-1)
	assert.ErrorIs(t, err, ErrWorkerIDOutOfRange)

	_, err = NewGenerator(1024)
	assert.ErrorIs(t, err, ErrWorkerIDOutOfRange)

	g, err := NewGenerator(1023)
	require.NoError(t, err)
	assert.NotNil(t, g)
}

// TestGenerator_Monotonic 测试同一节点内 ID 严格递增
func TestGenerator_Monotonic(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	var last int64
	for i := 0; i < 10000; i++ {
		id, err := g.NextID()
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

// TestGenerator_ConcurrentUnique 测试并发生成不重复
func TestGenerator_ConcurrentUnique(t *testing.T) {
	g, err := NewGenerator(2)
	require.NoError(t, err)

	const goroutines = 8
	const perGoroutine = 500

	var mu sync.Mutex
	seen := make(map[int64]struct{}, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id, err := g.NextID()
				assert.NoError(t, err)
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

// TestDecompose 测试 ID 拆解还原各字段
func TestDecompose(t *testing.T) {
	g, err := NewGenerator(42)
	require.NoError(t, err)

	before := time.Now().Truncate(time.Millisecond)
	id, err := g.NextID()
	require.NoError(t, err)

	ts, workerID, sequence := Decompose(id)
	assert.Equal(t, int64(42), workerID)
	assert.GreaterOrEqual(t, sequence, int64(0))
	assert.False(t, ts.Before(before))
	assert.WithinDuration(t, time.Now(), ts, time.Second)
}

// TestNextOrderNo 测试订单号格式
func TestNextOrderNo(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	orderNo, err := g.NextOrderNo("SO")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(orderNo, "SO-"))
	assert.Greater(t, len(orderNo), 3)
}
