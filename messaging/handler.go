// Package messaging 提供消息处理器抽象
package messaging

import (
	"context"
)

// IMessageHandler 消息处理器接口
type IMessageHandler interface {
	// Handle 处理消息
	Handle(ctx context.Context, message IMessage) error

	// Type 返回处理器类型（用于日志和调试）
	Type() string
}

// HandlerFunc 是一个函数类型，用于处理消息。它是中间件链中的基本执行单元
type HandlerFunc func(ctx context.Context, message IMessage) error

// IMiddleware 定义了消息总线中间件的接口
type IMiddleware interface {
	Handle(ctx context.Context, message IMessage, next HandlerFunc) error
	Name() string
}

// funcHandler 将函数适配为 IMessageHandler
type funcHandler struct {
	handlerType string
	fn          HandlerFunc
}

func (h *funcHandler) Handle(ctx context.Context, message IMessage) error {
	return h.fn(ctx, message)
}

func (h *funcHandler) Type() string {
	return h.handlerType
}

// NewHandler 将处理函数包装为 IMessageHandler
//
// 参数：
//   - handlerType: 处理器类型（用于日志和调试）
//   - fn: 处理函数
func NewHandler(handlerType string, fn HandlerFunc) IMessageHandler {
	return &funcHandler{handlerType: handlerType, fn: fn}
}
