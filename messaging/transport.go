// Package messaging 提供消息传输层抽象
package messaging

import (
	"context"
)

// Transport 消息传输接口
//
// 实现约定（Saga 子系统依赖的最小语义）：
//   - 至少一次投递：处理失败或进程崩溃的消息会被重投
//   - 分区键顺序：GetPartitionKey 相同的消息按发布顺序串行投递，
//     不同分区键的消息可以并行处理
type Transport interface {
	Publish(ctx context.Context, message IMessage) error
	PublishAll(ctx context.Context, messages []IMessage) error
	Subscribe(messageType string, handler IMessageHandler) error
	Unsubscribe(messageType string, handler IMessageHandler) error
	Start(ctx context.Context) error
	Close() error
	Stats() TransportStats
}

// ITransport Transport 的别名
type ITransport = Transport

// TransportStats 传输层统计信息
type TransportStats struct {
	Running      bool     `json:"running"`
	HandlerCount int      `json:"handler_count"`
	MessageTypes []string `json:"message_types"`
	QueueDepth   int      `json:"queue_depth,omitempty"`
	WorkerCount  int      `json:"worker_count,omitempty"`
}
