// Package memory 提供基于内存队列的消息传输实现
// 适用于单机部署、开发环境和测试场景
package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"ordersaga/messaging"
)

// MemoryTransport 内存消息传输实现
//
// 特性:
//   - 每个 Worker 独占一条队列，消息按分区键哈希路由到固定 Worker
//   - 同一分区键的消息严格按发布顺序串行处理，不同分区键并行
//   - 支持批量发布
//   - 并发安全
//
// 使用场景:
//   - 单机部署
//   - 开发环境
//   - 测试场景
type MemoryTransport struct {
	handlers    map[string][]messaging.IMessageHandler
	queues      []chan messaging.IMessage
	queueSize   int
	workerCount int
	running     bool
	mutex       sync.RWMutex
	wg          sync.WaitGroup
}

// NewMemoryTransport 创建内存传输实例
//
// 参数:
//   - queueSize: 每个 Worker 的队列大小（<=0 时使用默认 1000）
//   - workerCount: Worker 数量（<=0 时使用默认 4）
//
// 返回:
//   - *MemoryTransport: 传输实例
func NewMemoryTransport(queueSize, workerCount int) *MemoryTransport {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if workerCount <= 0 {
		workerCount = 4
	}

	return &MemoryTransport{
		handlers:    make(map[string][]messaging.IMessageHandler),
		queueSize:   queueSize,
		workerCount: workerCount,
	}
}

// Publish 发布消息到分区队列
//
// 分区键相同的消息总是进入同一条队列，由同一个 Worker 顺序消费。
// 队列满时阻塞（背压），直到 Worker 消费或上下文取消。
func (t *MemoryTransport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mutex.RLock()
	if !t.running {
		t.mutex.RUnlock()
		return fmt.Errorf("memory transport is not running")
	}
	queue := t.queues[t.partitionIndex(message)]
	t.mutex.RUnlock()

	select {
	case queue <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAll 批量发布消息
func (t *MemoryTransport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe 注册消息处理器
func (t *MemoryTransport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	return nil
}

// Unsubscribe 取消注册消息处理器
func (t *MemoryTransport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	handlers := t.handlers[messageType]
	for i, h := range handlers {
		if h == handler {
			t.handlers[messageType] = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}
	return nil
}

// Stats 返回传输层统计信息
func (t *MemoryTransport) Stats() messaging.TransportStats {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	handlerCount := 0
	types := make([]string, 0, len(t.handlers))
	for mt, hs := range t.handlers {
		handlerCount += len(hs)
		types = append(types, mt)
	}

	depth := 0
	for _, q := range t.queues {
		depth += len(q)
	}

	return messaging.TransportStats{
		Running:      t.running,
		HandlerCount: handlerCount,
		MessageTypes: types,
		QueueDepth:   depth,
		WorkerCount:  t.workerCount,
	}
}

// partitionIndex 计算消息所属的队列下标
//
// 分区键为空时退化为按消息 ID 哈希，保持负载均衡但不提供顺序保证。
func (t *MemoryTransport) partitionIndex(message messaging.IMessage) int {
	key := message.GetPartitionKey()
	if key == "" {
		key = message.GetID()
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(t.workerCount))
}
