package messaging

import (
	"context"
	"errors"
	"time"

	"ordersaga/logging"
)

// ErrMissingPartitionKey 消息缺少分区键
//
// Saga 子系统的顺序保证建立在分区键路由之上，
// 无分区键的消息会破坏同一 Saga 的结果串行化，发布侧直接拒绝。
var ErrMissingPartitionKey = errors.New("messaging: message has no partition key")

// PartitionKeyGuard 发布前校验分区键非空的中间件
type PartitionKeyGuard struct{}

// NewPartitionKeyGuard 创建分区键校验中间件
func NewPartitionKeyGuard() *PartitionKeyGuard {
	return &PartitionKeyGuard{}
}

func (g *PartitionKeyGuard) Name() string {
	return "partition-key-guard"
}

func (g *PartitionKeyGuard) Handle(ctx context.Context, message IMessage, next HandlerFunc) error {
	if message.GetPartitionKey() == "" {
		return ErrMissingPartitionKey
	}
	return next(ctx, message)
}

// PublishLogger 记录每条发布消息的中间件
type PublishLogger struct {
	logger logging.Logger
}

// NewPublishLogger 创建发布日志中间件
//
// 参数:
//   - logger: 日志器，nil 时派生组件日志器
func NewPublishLogger(logger logging.Logger) *PublishLogger {
	if logger == nil {
		logger = logging.ComponentLogger("messaging.publish")
	}
	return &PublishLogger{logger: logger}
}

func (l *PublishLogger) Name() string {
	return "publish-logger"
}

func (l *PublishLogger) Handle(ctx context.Context, message IMessage, next HandlerFunc) error {
	start := time.Now()
	err := next(ctx, message)
	if err != nil {
		l.logger.Warn(ctx, "消息发布失败",
			logging.String("message_id", message.GetID()),
			logging.String("message_type", message.GetType()),
			logging.String("partition_key", message.GetPartitionKey()),
			logging.Error(err))
		return err
	}
	l.logger.Debug(ctx, "消息已发布",
		logging.String("message_id", message.GetID()),
		logging.String("message_type", message.GetType()),
		logging.String("partition_key", message.GetPartitionKey()),
		logging.Duration("elapsed", time.Since(start)))
	return nil
}
