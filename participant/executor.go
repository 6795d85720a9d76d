// Package participant 实现 Saga 参与者：
// 每个参与者在本地事务中应用/撤销一个副作用，
// 经幂等台账防重，并以 sagaID 为分区键回复结果。
package participant

import (
	"context"
	stderrors "errors"
	"fmt"

	"ordersaga/errors"
	"ordersaga/logging"
	"ordersaga/messaging"
	"ordersaga/participant/ledger"
	"ordersaga/saga"
)

// EffectFunc 应用一条命令的本地副作用
//
// SQL 实现应在同一本地事务中写入效果与台账行；
// 业务失败（库存不足、券已用、积分不够）返回携带错误码的
// *errors.AppError，基础设施失败返回普通 error。
type EffectFunc func(ctx context.Context, cmd *saga.SagaCommand) error

// Config 执行器配置
type Config struct {
	// Name 参与者名称（inventory / coupon / point），用于日志
	Name string

	// Ledger 幂等台账
	Ledger ledger.ILedger

	// Publisher 结果消息发布
	Publisher saga.IPublisher

	// Effects 命令类型到副作用的映射
	Effects map[string]EffectFunc

	Logger logging.Logger
}

// Executor Saga 参与者执行器
//
// 执行路径：查台账 → 命中则直接回复成功 → 未命中则应用效果
// （效果实现负责与台账行同事务写入）→ 回复结果。
// 补偿命令走完全相同的路径，命令类型不同因此台账永不冲突。
type Executor struct {
	name      string
	ledger    ledger.ILedger
	publisher saga.IPublisher
	effects   map[string]EffectFunc
	logger    logging.Logger
}

// NewExecutor 创建参与者执行器
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Name == "" {
		return nil, stderrors.New("executor requires a name")
	}
	if cfg.Ledger == nil {
		return nil, stderrors.New("executor requires a ledger")
	}
	if cfg.Publisher == nil {
		return nil, stderrors.New("executor requires a publisher")
	}
	if len(cfg.Effects) == 0 {
		return nil, stderrors.New("executor requires at least one effect")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("participant." + cfg.Name)
	}
	return &Executor{
		name:      cfg.Name,
		ledger:    cfg.Ledger,
		publisher: cfg.Publisher,
		effects:   cfg.Effects,
		logger:    cfg.Logger,
	}, nil
}

// Execute 处理一条参与者命令
//
// 返回：
//   - bool: true 表示命令此前已应用（台账命中，本次未产生副作用）
//   - error: 基础设施错误（传输层据此重投；业务失败不是错误，
//     以 success=false 的结果消息回复）
func (e *Executor) Execute(ctx context.Context, cmd *saga.SagaCommand) (bool, error) {
	effect, ok := e.effects[cmd.CommandType]
	if !ok {
		return false, fmt.Errorf("%w: %s", saga.ErrUnknownCommandType, cmd.CommandType)
	}

	processed, err := e.ledger.Contains(ctx, cmd.SagaID, cmd.CommandType)
	if err != nil {
		return false, fmt.Errorf("check idempotency ledger: %w", err)
	}
	if processed {
		// 重投：不重复应用，但照常回复成功，
		// 维持编排器的至少一次投递假设
		e.logger.Info(ctx, "command already processed",
			logging.String("saga_id", cmd.SagaID),
			logging.String("command_type", cmd.CommandType))
		return true, e.replySuccess(ctx, cmd)
	}

	if err := effect(ctx, cmd); err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			if saga.IsCompensationCommand(cmd.CommandType) {
				// 补偿本身失败是致命问题：记录并上抛供重试/人工介入，
				// 绝不向编排器报告成功
				e.logger.Error(ctx, "compensation failed",
					logging.String("saga_id", cmd.SagaID),
					logging.String("command_type", cmd.CommandType),
					logging.String("error_code", string(appErr.Code())),
					logging.Error(err))
				return false, err
			}
			e.logger.Warn(ctx, "command rejected",
				logging.String("saga_id", cmd.SagaID),
				logging.String("command_type", cmd.CommandType),
				logging.String("error_code", string(appErr.Code())))
			return false, e.replyFailure(ctx, cmd, appErr)
		}
		// 基础设施错误：不回复，交由传输层重投
		return false, fmt.Errorf("apply %s effect: %w", cmd.CommandType, err)
	}

	e.logger.Info(ctx, "command applied",
		logging.String("saga_id", cmd.SagaID),
		logging.String("command_type", cmd.CommandType))
	return false, e.replySuccess(ctx, cmd)
}

// Handler 返回订阅命令主题的消息处理器
func (e *Executor) Handler() messaging.IMessageHandler {
	return messaging.NewHandler("participant."+e.name, func(ctx context.Context, message messaging.IMessage) error {
		var cmd saga.SagaCommand
		if err := saga.DecodePayload(message.GetPayload(), &cmd); err != nil {
			e.logger.Warn(ctx, "failed to decode saga command", logging.Error(err))
			return nil
		}
		_, err := e.Execute(ctx, &cmd)
		return err
	})
}

func (e *Executor) replySuccess(ctx context.Context, cmd *saga.SagaCommand) error {
	return e.reply(ctx, &saga.StepResult{
		SagaID:      cmd.SagaID,
		OrderNo:     cmd.OrderNo,
		CommandType: cmd.CommandType,
		Success:     true,
	})
}

func (e *Executor) replyFailure(ctx context.Context, cmd *saga.SagaCommand, appErr *errors.AppError) error {
	return e.reply(ctx, &saga.StepResult{
		SagaID:       cmd.SagaID,
		OrderNo:      cmd.OrderNo,
		CommandType:  cmd.CommandType,
		Success:      false,
		ErrorCode:    string(appErr.Code()),
		ErrorMessage: appErr.Message(),
	})
}

func (e *Executor) reply(ctx context.Context, result *saga.StepResult) error {
	if err := e.publisher.Publish(ctx, saga.NewResultMessage(result)); err != nil {
		return fmt.Errorf("publish step result: %w", err)
	}
	return nil
}
