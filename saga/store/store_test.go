package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"ordersaga/saga"
)

func newTestPayload(t *testing.T) *saga.OrderPayload {
	t.Helper()
	couponID := int64(7)
	payload, err := saga.NewOrderPayload(1, []saga.SagaItem{
		{ProductVariantID: 1, Quantity: 3},
		{ProductVariantID: 2, Quantity: 5},
	}, &couponID, 1000)
	require.NoError(t, err)
	return payload
}

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewSQLStore(db, "")
	require.NoError(t, s.EnsureTable(context.Background()))
	return s
}

// storeUnderTest 覆盖两种实现的公共测试入口
func storesUnderTest(t *testing.T) map[string]saga.ISagaStore {
	return map[string]saga.ISagaStore{
		"memory": NewMemoryStore(),
		"sql":    newSQLStore(t),
	}
}

// TestStore_SaveGetUpdate 测试基本读写
func TestStore_SaveGetUpdate(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			instance := saga.NewSagaInstance("saga-1", "order-1", newTestPayload(t))
			require.NoError(t, s.Save(ctx, instance))

			got, err := s.Get(ctx, "saga-1")
			require.NoError(t, err)
			assert.Equal(t, "order-1", got.OrderNo)
			assert.Equal(t, saga.StatusStarted, got.Status)
			assert.Equal(t, saga.StepProduct, got.Step)
			require.NotNil(t, got.Payload)
			assert.Len(t, got.Payload.Items, 2)
			require.NotNil(t, got.Payload.CouponID)
			assert.Equal(t, int64(7), *got.Payload.CouponID)

			// 推进后更新
			got.Advance()
			require.NoError(t, s.Update(ctx, got))

			again, err := s.Get(ctx, "saga-1")
			require.NoError(t, err)
			assert.Equal(t, saga.StatusProductOK, again.Status)
			assert.Equal(t, saga.StepCoupon, again.Step)
		})
	}
}

// TestStore_GetMissing 测试不存在的实例返回 ErrSagaNotFound
func TestStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, saga.ErrSagaNotFound)
		})
	}
}

// TestStore_MarkTimedOut 测试原子超时标记
func TestStore_MarkTimedOut(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			instance := saga.NewSagaInstance("saga-t", "order-t", newTestPayload(t))
			require.NoError(t, s.Save(ctx, instance))

			// 非终态：标记成功
			marked, err := s.MarkTimedOut(ctx, "saga-t", "deadline exceeded")
			require.NoError(t, err)
			assert.True(t, marked)

			got, err := s.Get(ctx, "saga-t")
			require.NoError(t, err)
			assert.Equal(t, saga.StatusTimedOut, got.Status)
			assert.Equal(t, "deadline exceeded", got.FailureReason)
			// step 保持不变，供补偿计算使用
			assert.Equal(t, saga.StepProduct, got.Step)

			// 已终态：第二次标记失败
			marked, err = s.MarkTimedOut(ctx, "saga-t", "deadline exceeded")
			require.NoError(t, err)
			assert.False(t, marked)

			// 不存在的实例：不报错，返回 false
			marked, err = s.MarkTimedOut(ctx, "missing", "deadline exceeded")
			require.NoError(t, err)
			assert.False(t, marked)
		})
	}
}

// TestStore_MarkTimedOutAfterCompleted 测试完成后的超时标记为空操作
func TestStore_MarkTimedOutAfterCompleted(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			instance := saga.NewSagaInstance("saga-c", "order-c", newTestPayload(t))
			require.NoError(t, s.Save(ctx, instance))

			instance.MarkCompleted()
			require.NoError(t, s.Update(ctx, instance))

			marked, err := s.MarkTimedOut(ctx, "saga-c", "deadline exceeded")
			require.NoError(t, err)
			assert.False(t, marked)

			got, err := s.Get(ctx, "saga-c")
			require.NoError(t, err)
			assert.Equal(t, saga.StatusCompleted, got.Status)
		})
	}
}

// TestStore_UpdateAfterTerminal 测试终态实例的条件写入失败：
// 超时标记先落地后，结果处理侧的终态写入必须失败
func TestStore_UpdateAfterTerminal(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			instance := saga.NewSagaInstance("saga-u", "order-u", newTestPayload(t))
			require.NoError(t, s.Save(ctx, instance))

			marked, err := s.MarkTimedOut(ctx, "saga-u", "deadline exceeded")
			require.NoError(t, err)
			require.True(t, marked)

			// 并发竞争的另一侧：写入 ABORTED 被拒绝
			instance.MarkAborted("OUT_OF_STOCK")
			err = s.Update(ctx, instance)
			assert.ErrorIs(t, err, saga.ErrSagaTerminal)

			got, err := s.Get(ctx, "saga-u")
			require.NoError(t, err)
			assert.Equal(t, saga.StatusTimedOut, got.Status)
		})
	}
}

// TestMemoryStore_DuplicateSave 测试重复保存报错
func TestMemoryStore_DuplicateSave(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	instance := saga.NewSagaInstance("saga-d", "order-d", newTestPayload(t))
	require.NoError(t, s.Save(ctx, instance))
	assert.Error(t, s.Save(ctx, instance))
}

// TestSQLStore_DuplicateSave 测试主键冲突报错
func TestSQLStore_DuplicateSave(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)
	instance := saga.NewSagaInstance("saga-d", "order-d", newTestPayload(t))
	require.NoError(t, s.Save(ctx, instance))
	assert.Error(t, s.Save(ctx, instance))
}
