package saga

import "errors"

// Saga 相关错误
var (
	// ErrInvalidPayload 负载校验失败
	ErrInvalidPayload = errors.New("saga invalid payload")

	// ErrSagaNotFound Saga 不存在
	ErrSagaNotFound = errors.New("saga not found")

	// ErrSagaTerminal Saga 已处于终态
	ErrSagaTerminal = errors.New("saga already terminal")

	// ErrSagaStoreFailed Saga 存储失败
	ErrSagaStoreFailed = errors.New("saga store failed")

	// ErrUnknownCommandType 未知命令类型
	ErrUnknownCommandType = errors.New("unknown saga command type")
)
