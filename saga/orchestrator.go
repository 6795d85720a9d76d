package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ordersaga/logging"
	"ordersaga/messaging"
	"ordersaga/retry"
)

// IPublisher 消息发布接口（Transport 与 MessageBus 均满足）
type IPublisher interface {
	Publish(ctx context.Context, message messaging.IMessage) error
}

// IDeadlineRegistry 注册 Saga 截止时间
//
// 超时监控的索引实现该接口；编排器在启动 Saga 时写入截止时间。
type IDeadlineRegistry interface {
	Add(ctx context.Context, sagaID string, deadline time.Time) error
}

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	Store     ISagaStore
	Publisher IPublisher
	Deadlines IDeadlineRegistry // 可选，nil 表示不注册超时

	// SagaTimeout 从启动到强制失败的期限，默认 10 分钟
	SagaTimeout time.Duration

	// LookupRetry 结果先于实例持久化到达时的查找重试配置
	LookupRetry retry.Config

	Logger logging.Logger
}

// Orchestrator 订单履约 Saga 编排器（核心状态机）
//
// 纯反应式：启动 Saga 后不阻塞等待，仅在参与者结果消息到达
// 或超时监控触发时推进状态机。
//
// # 并发模型
//
// 同一 sagaID 的结果消息经传输层分区键路由到同一逻辑消费者，
// 因此对单个 Saga 的 HandleResult 调用永不并发；跨 Saga 完全并行，
// 无需跨 Saga 锁。HandleResult 与 FailTimedOut 对终态转换的竞争
// 由存储层的原子标记（MarkTimedOut / 终态检查）消解。
type Orchestrator struct {
	store     ISagaStore
	publisher IPublisher
	deadlines IDeadlineRegistry
	timeout   time.Duration
	lookup    retry.Config
	logger    logging.Logger
}

// NewOrchestrator 创建编排器
//
// 参数：
//   - cfg: 配置（Store 与 Publisher 必填）
//
// 返回：
//   - *Orchestrator: 编排器实例
//   - error: 配置错误
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("orchestrator requires a saga store")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("orchestrator requires a publisher")
	}
	if cfg.SagaTimeout <= 0 {
		cfg.SagaTimeout = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("saga.orchestrator")
	}
	return &Orchestrator{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		deadlines: cfg.Deadlines,
		timeout:   cfg.SagaTimeout,
		lookup:    cfg.LookupRetry,
		logger:    cfg.Logger,
	}, nil
}

// Start 启动新的 Saga
//
// 负载必须已通过 NewOrderPayload 校验。实例先持久化、
// 再注册截止时间、最后发出库存扣减命令——持久化先于发布，
// 保证结果到达时实例必然可见（或可通过重试读到）。
//
// 参数：
//   - ctx: 上下文
//   - orderNo: 业务关联号（不可变）
//   - payload: 订单负载
//
// 返回：
//   - *SagaInstance: 新建实例
//   - error: 校验/存储/发布错误
func (o *Orchestrator) Start(ctx context.Context, orderNo string, payload *OrderPayload) (*SagaInstance, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload is nil", ErrInvalidPayload)
	}
	if len(payload.Items) == 0 {
		return nil, fmt.Errorf("%w: item list must not be empty", ErrInvalidPayload)
	}

	sagaID := uuid.NewString()
	instance := NewSagaInstance(sagaID, orderNo, payload)

	if err := o.store.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSagaStoreFailed, err)
	}

	if o.deadlines != nil {
		deadline := instance.StartedAt.Add(o.timeout)
		if err := o.deadlines.Add(ctx, sagaID, deadline); err != nil {
			// 截止时间注册失败不阻断 Saga：实例已持久化，
			// 缺失的保护只影响超时回收，记录错误供排查
			o.logger.Error(ctx, "failed to register saga deadline",
				logging.String("saga_id", sagaID), logging.Error(err))
		}
	}

	o.logger.Info(ctx, "saga started",
		logging.String("saga_id", sagaID),
		logging.String("order_no", orderNo),
		logging.Int("items", len(payload.Items)),
		logging.Bool("coupon", payload.NeedsCoupon()),
		logging.Bool("points", payload.NeedsPoints()))

	if err := o.publishCommand(ctx, instance, CommandDeductStock); err != nil {
		// 实例已持久化但命令未发出：超时监控最终会强制失败该 Saga
		o.logger.Error(ctx, "failed to publish initial command",
			logging.String("saga_id", sagaID), logging.Error(err))
		return instance, err
	}

	return instance, nil
}

// HandleResult 处理参与者结果（核心转移函数，幂等）
//
// 实例缺失或已终态的消息按过期/重复静默丢弃；
// 结果回显的命令类型与当前等待的步骤不符同样丢弃。
//
// 参数：
//   - ctx: 上下文
//   - result: 参与者结果
//
// 返回：
//   - error: 存储/发布错误（丢弃不是错误）
func (o *Orchestrator) HandleResult(ctx context.Context, result *StepResult) error {
	instance, err := o.lookupInstance(ctx, result.SagaID)
	if err != nil {
		if errors.Is(err, ErrSagaNotFound) {
			o.logger.Debug(ctx, "discarding result for unknown saga",
				logging.String("saga_id", result.SagaID),
				logging.String("command_type", result.CommandType))
			return nil
		}
		return err
	}

	if instance.IsTerminal() {
		o.logger.Debug(ctx, "discarding result for terminal saga",
			logging.String("saga_id", result.SagaID),
			logging.String("status", string(instance.Status)))
		return nil
	}

	expected := awaitedCommand(instance.Step)
	if expected == "" || (result.CommandType != "" && result.CommandType != expected) {
		o.logger.Debug(ctx, "discarding stale result",
			logging.String("saga_id", result.SagaID),
			logging.String("command_type", result.CommandType),
			logging.String("awaiting", expected))
		return nil
	}

	if !result.Success {
		return o.abort(ctx, instance, result.ErrorCode, result.ErrorMessage)
	}

	next := instance.Advance()
	if err := o.store.Update(ctx, instance); err != nil {
		if errors.Is(err, ErrSagaTerminal) {
			// 超时标记抢先落地：本结果按过期丢弃
			o.logger.Debug(ctx, "saga reached terminal state concurrently, discarding result",
				logging.String("saga_id", instance.SagaID))
			return nil
		}
		return fmt.Errorf("%w: %v", ErrSagaStoreFailed, err)
	}

	if next == StepPayment {
		o.logger.Info(ctx, "saga resources secured",
			logging.String("saga_id", instance.SagaID),
			logging.String("order_no", instance.OrderNo))
		return o.publishEvent(ctx, TopicResourcesSecured, instance.SagaID, &ResourcesSecuredEvent{
			SagaID:  instance.SagaID,
			OrderNo: instance.OrderNo,
			UserID:  instance.UserID,
		})
	}

	return o.publishCommand(ctx, instance, awaitedCommand(next))
}

// HandlePaymentResult 处理支付结果
//
// 成功标记 COMPLETED 并发布完成事件；失败按从
// RESOURCES_SECURED 中止处理（补偿全部已锁定资源）。
func (o *Orchestrator) HandlePaymentResult(ctx context.Context, result *PaymentResult) error {
	instance, err := o.lookupInstance(ctx, result.SagaID)
	if err != nil {
		if errors.Is(err, ErrSagaNotFound) {
			return nil
		}
		return err
	}

	if instance.IsTerminal() || instance.Status != StatusResourcesSecured {
		o.logger.Debug(ctx, "discarding payment result",
			logging.String("saga_id", result.SagaID),
			logging.String("status", string(instance.Status)))
		return nil
	}

	if !result.Success {
		code := result.ErrorCode
		if code == "" {
			code = "PAYMENT_FAILED"
		}
		return o.abort(ctx, instance, code, result.ErrorMessage)
	}

	instance.MarkCompleted()
	if err := o.store.Update(ctx, instance); err != nil {
		if errors.Is(err, ErrSagaTerminal) {
			o.logger.Debug(ctx, "saga reached terminal state concurrently, discarding payment result",
				logging.String("saga_id", instance.SagaID))
			return nil
		}
		return fmt.Errorf("%w: %v", ErrSagaStoreFailed, err)
	}

	o.logger.Info(ctx, "saga completed",
		logging.String("saga_id", instance.SagaID),
		logging.String("order_no", instance.OrderNo))

	return o.publishEvent(ctx, TopicOrderCompleted, instance.SagaID, &OrderCompletedEvent{
		SagaID:  instance.SagaID,
		OrderNo: instance.OrderNo,
		UserID:  instance.UserID,
	})
}

// FailTimedOut 强制失败超时的 Saga（由超时监控调用）
//
// 每个 ID 先经存储层原子的“非终态则标记 TIMED_OUT”检查；
// 标记成功才发出补偿与中止事件，失败（已终态）为空操作，
// 因此与 HandleResult 的竞争下终态转换恰好发生一次。
//
// 参数：
//   - ctx: 上下文
//   - sagaIDs: 截止时间已过的 Saga ID 列表
//
// 返回：
//   - error: 存储错误（逐个处理，首个错误即返回）
func (o *Orchestrator) FailTimedOut(ctx context.Context, sagaIDs []string) error {
	for _, sagaID := range sagaIDs {
		marked, err := o.store.MarkTimedOut(ctx, sagaID, "saga deadline exceeded")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSagaStoreFailed, err)
		}
		if !marked {
			continue
		}

		instance, err := o.store.Get(ctx, sagaID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSagaStoreFailed, err)
		}

		o.logger.Warn(ctx, "saga timed out",
			logging.String("saga_id", sagaID),
			logging.String("order_no", instance.OrderNo),
			logging.String("step", string(instance.Step)))

		if err := o.compensate(ctx, instance); err != nil {
			return err
		}
		if err := o.publishEvent(ctx, TopicOrderAborted, instance.SagaID, &OrderAbortedEvent{
			SagaID:      instance.SagaID,
			OrderNo:     instance.OrderNo,
			UserID:      instance.UserID,
			FailureCode: "SAGA_TIMEOUT",
		}); err != nil {
			return err
		}
	}
	return nil
}

// ResultHandler 返回订阅结果主题的消息处理器
func (o *Orchestrator) ResultHandler() messaging.IMessageHandler {
	return messaging.NewHandler("saga.orchestrator.result", func(ctx context.Context, message messaging.IMessage) error {
		var result StepResult
		if err := DecodePayload(message.GetPayload(), &result); err != nil {
			o.logger.Warn(ctx, "failed to decode step result", logging.Error(err))
			return nil
		}
		return o.HandleResult(ctx, &result)
	})
}

// PaymentResultHandler 返回订阅支付结果主题的消息处理器
func (o *Orchestrator) PaymentResultHandler() messaging.IMessageHandler {
	return messaging.NewHandler("saga.orchestrator.payment", func(ctx context.Context, message messaging.IMessage) error {
		var result PaymentResult
		if err := DecodePayload(message.GetPayload(), &result); err != nil {
			o.logger.Warn(ctx, "failed to decode payment result", logging.Error(err))
			return nil
		}
		return o.HandlePaymentResult(ctx, &result)
	})
}

// abort 标记中止并发出补偿与中止事件
func (o *Orchestrator) abort(ctx context.Context, instance *SagaInstance, errorCode, errorMessage string) error {
	reason := errorCode
	if errorMessage != "" {
		reason = fmt.Sprintf("%s: %s", errorCode, errorMessage)
	}
	instance.MarkAborted(reason)
	if err := o.store.Update(ctx, instance); err != nil {
		if errors.Is(err, ErrSagaTerminal) {
			// 另一侧已完成终态转换并负责补偿，本次中止放弃，
			// 保证补偿至多发出一次
			o.logger.Debug(ctx, "saga reached terminal state concurrently, skipping abort",
				logging.String("saga_id", instance.SagaID))
			return nil
		}
		return fmt.Errorf("%w: %v", ErrSagaStoreFailed, err)
	}

	o.logger.Warn(ctx, "saga aborted",
		logging.String("saga_id", instance.SagaID),
		logging.String("order_no", instance.OrderNo),
		logging.String("failure_code", errorCode))

	if err := o.compensate(ctx, instance); err != nil {
		return err
	}

	return o.publishEvent(ctx, TopicOrderAborted, instance.SagaID, &OrderAbortedEvent{
		SagaID:      instance.SagaID,
		OrderNo:     instance.OrderNo,
		UserID:      instance.UserID,
		FailureCode: errorCode,
	})
}

// compensate 按执行逆序发出补偿命令（积分 → 优惠券 → 库存）
func (o *Orchestrator) compensate(ctx context.Context, instance *SagaInstance) error {
	secured := instance.CompensableSteps()
	for i := len(secured) - 1; i >= 0; i-- {
		commandType := compensationCommand(secured[i])
		if commandType == "" {
			continue
		}
		o.logger.Info(ctx, "emitting compensation",
			logging.String("saga_id", instance.SagaID),
			logging.String("command_type", commandType))
		if err := o.publishCommand(ctx, instance, commandType); err != nil {
			return err
		}
	}
	return nil
}

// publishCommand 构造并发布参与者命令
func (o *Orchestrator) publishCommand(ctx context.Context, instance *SagaInstance, commandType string) error {
	topic, err := CommandTopic(commandType)
	if err != nil {
		return err
	}

	cmd := &SagaCommand{
		SagaID:      instance.SagaID,
		OrderNo:     instance.OrderNo,
		CommandType: commandType,
		UserID:      instance.UserID,
		IssuedAt:    time.Now(),
	}
	switch commandType {
	case CommandDeductStock, CommandRestoreStock:
		cmd.Items = instance.Payload.Items
	case CommandUseCoupon, CommandCancelCoupon:
		cmd.CouponID = instance.Payload.CouponID
	case CommandUsePoint, CommandRefundPoint:
		cmd.Amount = instance.Payload.PointsToUse
	}

	if err := o.publisher.Publish(ctx, NewCommandMessage(topic, cmd)); err != nil {
		return fmt.Errorf("publish %s command: %w", commandType, err)
	}
	return nil
}

// publishEvent 发布领域事件
func (o *Orchestrator) publishEvent(ctx context.Context, topic, sagaID string, event interface{}) error {
	if err := o.publisher.Publish(ctx, NewEventMessage(topic, sagaID, event)); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// lookupInstance 读取实例，容忍结果先于持久化到达（有界重试）
func (o *Orchestrator) lookupInstance(ctx context.Context, sagaID string) (*SagaInstance, error) {
	var instance *SagaInstance
	err := retry.Do(ctx, func(ctx context.Context) error {
		var getErr error
		instance, getErr = o.store.Get(ctx, sagaID)
		return getErr
	}, o.lookup)
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// awaitedCommand 返回某步骤等待的正向命令类型
func awaitedCommand(step Step) string {
	switch step {
	case StepProduct:
		return CommandDeductStock
	case StepCoupon:
		return CommandUseCoupon
	case StepPoint:
		return CommandUsePoint
	default:
		return ""
	}
}

// compensationCommand 返回某步骤的补偿命令类型
func compensationCommand(step Step) string {
	switch step {
	case StepProduct:
		return CommandRestoreStock
	case StepCoupon:
		return CommandCancelCoupon
	case StepPoint:
		return CommandRefundPoint
	default:
		return ""
	}
}
