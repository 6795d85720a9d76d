package participant

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"ordersaga/logging"
	"ordersaga/messaging"
	"ordersaga/participant/ledger"
	"ordersaga/saga"
)

// capturePublisher 记录发布的结果消息
type capturePublisher struct {
	mu       sync.Mutex
	messages []messaging.IMessage
}

func (p *capturePublisher) Publish(ctx context.Context, message messaging.IMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	return nil
}

func (p *capturePublisher) results(t *testing.T) []*saga.StepResult {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*saga.StepResult, 0, len(p.messages))
	for _, msg := range p.messages {
		var result saga.StepResult
		require.NoError(t, saga.DecodePayload(msg.GetPayload(), &result))
		out = append(out, &result)
	}
	return out
}

type participantFixture struct {
	db        *sql.DB
	ledger    *ledger.SQLLedger
	publisher *capturePublisher
	inventory *InventoryEffects
	coupon    *CouponEffects
	points    *PointEffects
}

func newFixture(t *testing.T) *participantFixture {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	// 内存库共享连接，避免多连接各见一个空库
	db.SetMaxOpenConns(1)

	l := ledger.NewSQLLedger(db, "")
	require.NoError(t, l.EnsureTable(ctx))

	f := &participantFixture{
		db:        db,
		ledger:    l,
		publisher: &capturePublisher{},
		inventory: NewInventoryEffects(db, l, ""),
		coupon:    NewCouponEffects(db, l, ""),
		points:    NewPointEffects(db, l, ""),
	}
	require.NoError(t, f.inventory.EnsureTable(ctx))
	require.NoError(t, f.coupon.EnsureTable(ctx))
	require.NoError(t, f.points.EnsureTable(ctx))
	return f
}

func (f *participantFixture) executor(t *testing.T, name string, effects map[string]EffectFunc) *Executor {
	t.Helper()
	e, err := NewExecutor(Config{
		Name:      name,
		Ledger:    f.ledger,
		Publisher: f.publisher,
		Effects:   effects,
		Logger:    logging.NewNoopLogger(),
	})
	require.NoError(t, err)
	return e
}

func deductCommand(sagaID string) *saga.SagaCommand {
	return &saga.SagaCommand{
		SagaID:      sagaID,
		OrderNo:     "order-1",
		CommandType: saga.CommandDeductStock,
		UserID:      1,
		Items: []saga.SagaItem{
			{ProductVariantID: 1, Quantity: 3},
			{ProductVariantID: 2, Quantity: 5},
		},
	}
}

// TestExecutor_IdempotentApply 测试命令应用恰好一次：
// 重复执行只产生一条台账记录，效果只应用一次
func TestExecutor_IdempotentApply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.inventory.Seed(ctx, 1, 10))
	require.NoError(t, f.inventory.Seed(ctx, 2, 10))

	e := f.executor(t, "inventory", f.inventory.Effects())
	cmd := deductCommand("saga-1")

	already, err := e.Execute(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, already)

	// 重投同一命令
	already, err = e.Execute(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, already)

	// 效果只应用一次
	quantity, err := f.inventory.Quantity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, quantity)

	// 两次都回复成功，维持至少一次投递假设
	results := f.publisher.results(t)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, saga.CommandDeductStock, r.CommandType)
		assert.Equal(t, "saga-1", r.SagaID)
	}
}

// TestExecutor_OutOfStock 测试库存不足：整个事务回滚，回复业务失败
func TestExecutor_OutOfStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.inventory.Seed(ctx, 1, 10))
	require.NoError(t, f.inventory.Seed(ctx, 2, 2)) // 第二行不足

	e := f.executor(t, "inventory", f.inventory.Effects())

	already, err := e.Execute(ctx, deductCommand("saga-2"))
	require.NoError(t, err)
	assert.False(t, already)

	// 第一行的扣减随事务回滚
	quantity, err := f.inventory.Quantity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, quantity)

	// 台账无记录，重试安全
	processed, err := f.ledger.Contains(ctx, "saga-2", saga.CommandDeductStock)
	require.NoError(t, err)
	assert.False(t, processed)

	results := f.publisher.results(t)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "OUT_OF_STOCK", results[0].ErrorCode)
}

// TestExecutor_CouponLifecycle 测试优惠券核销、重复核销与撤销
func TestExecutor_CouponLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.coupon.Seed(ctx, 7, 1, false))

	e := f.executor(t, "coupon", f.coupon.Effects())
	couponID := int64(7)
	useCmd := &saga.SagaCommand{
		SagaID:      "saga-3",
		OrderNo:     "order-3",
		CommandType: saga.CommandUseCoupon,
		UserID:      1,
		CouponID:    &couponID,
	}

	_, err := e.Execute(ctx, useCmd)
	require.NoError(t, err)
	used, err := f.coupon.IsUsed(ctx, 7)
	require.NoError(t, err)
	assert.True(t, used)

	// 另一个 Saga 使用同一张券：业务失败
	otherCmd := *useCmd
	otherCmd.SagaID = "saga-4"
	_, err = e.Execute(ctx, &otherCmd)
	require.NoError(t, err)

	results := f.publisher.results(t)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "COUPON_ALREADY_USED", results[1].ErrorCode)

	// 补偿：撤销核销
	cancelCmd := *useCmd
	cancelCmd.CommandType = saga.CommandCancelCoupon
	_, err = e.Execute(ctx, &cancelCmd)
	require.NoError(t, err)
	used, err = f.coupon.IsUsed(ctx, 7)
	require.NoError(t, err)
	assert.False(t, used)
}

// TestExecutor_CouponNotFound 测试券不存在与券已用的错误码区分
func TestExecutor_CouponNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e := f.executor(t, "coupon", f.coupon.Effects())
	couponID := int64(99)
	_, err := e.Execute(ctx, &saga.SagaCommand{
		SagaID:      "saga-5",
		CommandType: saga.CommandUseCoupon,
		UserID:      1,
		CouponID:    &couponID,
	})
	require.NoError(t, err)

	results := f.publisher.results(t)
	require.Len(t, results, 1)
	assert.Equal(t, "COUPON_NOT_FOUND", results[0].ErrorCode)
}

// TestExecutor_PointsAndCompensation 测试积分扣减、余额不足与退还
func TestExecutor_PointsAndCompensation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.points.Seed(ctx, 1, 1000))

	e := f.executor(t, "point", f.points.Effects())

	useCmd := &saga.SagaCommand{
		SagaID:      "saga-6",
		CommandType: saga.CommandUsePoint,
		UserID:      1,
		Amount:      600,
	}
	_, err := e.Execute(ctx, useCmd)
	require.NoError(t, err)

	balance, err := f.points.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance)

	// 余额不足
	overdraft := *useCmd
	overdraft.SagaID = "saga-7"
	_, err = e.Execute(ctx, &overdraft)
	require.NoError(t, err)
	results := f.publisher.results(t)
	assert.Equal(t, "INSUFFICIENT_POINT", results[len(results)-1].ErrorCode)

	// 补偿退还
	refund := *useCmd
	refund.CommandType = saga.CommandRefundPoint
	_, err = e.Execute(ctx, &refund)
	require.NoError(t, err)
	balance, err = f.points.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

// TestExecutor_CommandAndCompensationDontCollide 测试命令与其补偿
// 使用不同命令类型，在台账中互不冲突
func TestExecutor_CommandAndCompensationDontCollide(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.points.Seed(ctx, 1, 1000))

	e := f.executor(t, "point", f.points.Effects())
	useCmd := &saga.SagaCommand{
		SagaID:      "saga-8",
		CommandType: saga.CommandUsePoint,
		UserID:      1,
		Amount:      100,
	}
	_, err := e.Execute(ctx, useCmd)
	require.NoError(t, err)

	refund := *useCmd
	refund.CommandType = saga.CommandRefundPoint
	already, err := e.Execute(ctx, &refund)
	require.NoError(t, err)
	assert.False(t, already, "compensation must not hit the forward command's ledger entry")

	balance, err := f.points.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

// TestExecutor_FailedCompensationNeverSuccess 测试补偿失败绝不回复成功
func TestExecutor_FailedCompensationNeverSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// 账户不存在，退款必然失败

	e := f.executor(t, "point", f.points.Effects())
	_, err := e.Execute(ctx, &saga.SagaCommand{
		SagaID:      "saga-9",
		CommandType: saga.CommandRefundPoint,
		UserID:      42,
		Amount:      100,
	})
	assert.Error(t, err)
	assert.Empty(t, f.publisher.results(t), "failed compensation must not emit any reply")
}

// TestExecutor_UnknownCommand 测试未注册的命令类型
func TestExecutor_UnknownCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e := f.executor(t, "inventory", f.inventory.Effects())
	_, err := e.Execute(ctx, &saga.SagaCommand{
		SagaID:      "saga-10",
		CommandType: saga.CommandUsePoint,
	})
	assert.ErrorIs(t, err, saga.ErrUnknownCommandType)
}
