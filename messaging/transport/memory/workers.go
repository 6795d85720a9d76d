// Package memory 实现分区 Worker 池管理
package memory

import (
	"context"
	"fmt"

	"ordersaga/messaging"
)

// Start 启动传输层
//
// 为每个分区创建队列并启动对应 Worker。
//
// 参数:
//   - ctx: 上下文（用于取消 Worker）
//
// 返回:
//   - error: 已启动时返回错误
func (t *MemoryTransport) Start(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.running {
		return fmt.Errorf("memory transport is already running")
	}

	t.running = true
	t.queues = make([]chan messaging.IMessage, t.workerCount)

	for i := 0; i < t.workerCount; i++ {
		queue := make(chan messaging.IMessage, t.queueSize)
		t.queues[i] = queue

		t.wg.Add(1)
		go t.worker(ctx, queue)
	}

	return nil
}

// Close 关闭传输层
//
// 关闭所有分区队列并等待缓冲中的消息被处理完
//
// 返回:
//   - error: 未启动时返回错误
func (t *MemoryTransport) Close() error {
	t.mutex.Lock()
	if !t.running {
		t.mutex.Unlock()
		return fmt.Errorf("memory transport is not running")
	}

	t.running = false
	queues := t.queues
	t.mutex.Unlock()

	// 先关闭队列，Worker 将在读取完缓冲中的消息后自然退出
	for _, q := range queues {
		close(q)
	}
	t.wg.Wait()
	return nil
}

// worker 单分区消费循环
//
// 每条队列只由一个 Worker 读取，因此队列内的顺序即处理顺序。
func (t *MemoryTransport) worker(ctx context.Context, queue chan messaging.IMessage) {
	defer t.wg.Done()

	for message := range queue {
		select {
		case <-ctx.Done():
			return
		default:
		}
		t.dispatch(ctx, message)
	}
}

// dispatch 将消息投递给订阅的处理器
func (t *MemoryTransport) dispatch(ctx context.Context, message messaging.IMessage) {
	t.mutex.RLock()
	exact := t.handlers[message.GetType()]
	wildcard := t.handlers["*"]
	handlers := make([]messaging.IMessageHandler, 0, len(exact)+len(wildcard))
	handlers = append(handlers, exact...)
	handlers = append(handlers, wildcard...)
	t.mutex.RUnlock()

	for _, h := range handlers {
		_ = h.Handle(ctx, message)
	}
}
