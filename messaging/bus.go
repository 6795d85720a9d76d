// Package messaging 提供 Saga 子系统使用的消息总线：
// 发布/订阅、分区键有序投递的传输层抽象，以及发布侧中间件。
package messaging

import (
	"context"
	"fmt"
	"sync"
)

// IMessageBus 消息总线接口
type IMessageBus interface {
	Subscribe(ctx context.Context, messageType string, handler IMessageHandler) error
	Unsubscribe(ctx context.Context, messageType string, handler IMessageHandler) error
	Publish(ctx context.Context, message IMessage) error
	PublishAll(ctx context.Context, messages []IMessage) error
	Use(middleware IMiddleware)
}

// MessageBus 消息总线，实际投递委托给 Transport。
//
// 中间件仅作用于发布路径：校验、打日志、补充元数据等
// 都在消息进入传输层之前完成，消费侧不再重复执行。
type MessageBus struct {
	transport   Transport
	middlewares []IMiddleware
	mutex       sync.RWMutex
}

// NewMessageBus 创建消息总线
func NewMessageBus(transport Transport) *MessageBus {
	return &MessageBus{transport: transport}
}

// Use 注册发布侧中间件，按注册顺序执行
func (bus *MessageBus) Use(middleware IMiddleware) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	bus.middlewares = append(bus.middlewares, middleware)
}

// Subscribe 订阅指定类型的消息
func (bus *MessageBus) Subscribe(ctx context.Context, messageType string, handler IMessageHandler) error {
	return bus.transport.Subscribe(messageType, handler)
}

// Unsubscribe 取消订阅
func (bus *MessageBus) Unsubscribe(ctx context.Context, messageType string, handler IMessageHandler) error {
	return bus.transport.Unsubscribe(messageType, handler)
}

// Publish 执行中间件链后将消息交给传输层
func (bus *MessageBus) Publish(ctx context.Context, message IMessage) error {
	return bus.executeMiddlewares(ctx, message, func(ctx context.Context, msg IMessage) error {
		return bus.transport.Publish(ctx, msg)
	})
}

// PublishAll 批量发布
//
// 所有消息先逐条通过中间件链，全部通过后一次性交给传输层；
// 任一消息被中间件拒绝则整批不发。
func (bus *MessageBus) PublishAll(ctx context.Context, messages []IMessage) error {
	if len(messages) == 0 {
		return nil
	}

	batched := make([]IMessage, 0, len(messages))
	for _, message := range messages {
		err := bus.executeMiddlewares(ctx, message, func(ctx context.Context, msg IMessage) error {
			batched = append(batched, msg)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to publish message %s: %w", message.GetID(), err)
		}
	}

	if err := bus.transport.PublishAll(ctx, batched); err != nil {
		return fmt.Errorf("failed to publish batch (%d messages): %w", len(batched), err)
	}
	return nil
}

func (bus *MessageBus) executeMiddlewares(ctx context.Context, message IMessage, finalHandler HandlerFunc) error {
	bus.mutex.RLock()
	middlewares := bus.middlewares
	bus.mutex.RUnlock()

	next := finalHandler
	for i := len(middlewares) - 1; i >= 0; i-- {
		middleware := middlewares[i]
		currentNext := next
		next = func(ctx context.Context, msg IMessage) error {
			return middleware.Handle(ctx, msg, currentNext)
		}
	}
	return next(ctx, message)
}
