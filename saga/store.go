package saga

import (
	"context"
)

// ISagaStore Saga 实例存储接口
//
// 实例由编排器单写；存储实现需保证 MarkTimedOut 的原子性，
// 这是整个子系统唯一要求强一致的共享操作。
type ISagaStore interface {
	// Save 持久化新实例
	//
	// 必须在发出首条命令之前完成，保证结果先于持久化到达时
	// 编排器可以通过重试读取到实例。
	Save(ctx context.Context, instance *SagaInstance) error

	// Get 按 sagaID 读取实例
	//
	// 返回：
	//   - *SagaInstance: 实例副本（调用方可安全修改）
	//   - error: 不存在时返回 ErrSagaNotFound
	Get(ctx context.Context, sagaID string) (*SagaInstance, error)

	// Update 更新实例当前步骤/状态（条件写入）
	//
	// 仅当存储中的实例仍为非终态时生效；已终态返回 ErrSagaTerminal。
	// 与 MarkTimedOut 配对，保证终态转换恰好发生一次：
	// 超时标记先落地时，结果处理侧的终态写入会在这里失败。
	Update(ctx context.Context, instance *SagaInstance) error

	// MarkTimedOut 原子地将非终态实例标记为 TIMED_OUT
	//
	// 与 HandleResult 到达终态的写入存在竞争，必须是
	// 单次原子的“检查非终态并标记”操作（SQL 为条件 UPDATE）。
	//
	// 返回：
	//   - bool: true 表示本次调用完成了标记；false 表示实例已终态或不存在
	//   - error: 存储错误
	MarkTimedOut(ctx context.Context, sagaID, reason string) (bool, error)
}
