// Package retry 提供带指数退避的有界重试
package retry

import (
	"context"
	"time"
)

// Operation 可重试的操作函数类型
type Operation func(ctx context.Context) error

// Config 重试配置
type Config struct {
	MaxAttempts   int           // 最大尝试次数（包括首次）
	InitialDelay  time.Duration // 初始退避延迟
	BackoffFactor float64       // 退避倍数（指数退避）
	MaxDelay      time.Duration // 最大延迟
}

// DefaultConfig 返回默认配置
//
// 默认值：
//   - MaxAttempts: 3（1次初始 + 2次重试）
//   - InitialDelay: 10ms
//   - BackoffFactor: 2.0（指数退避）
//   - MaxDelay: 1s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      1 * time.Second,
	}
}

// normalize 填充零值配置
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = def.BackoffFactor
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	return c
}

// Do 执行带重试的操作
//
// 参数：
//   - ctx: 上下文（支持取消）
//   - op: 要执行的操作
//   - cfg: 重试配置（零值字段取默认值）
//
// 返回：
//   - nil（任意一次尝试成功）
//   - 最后一次执行的错误（所有尝试均失败）
func Do(ctx context.Context, op Operation, cfg Config) error {
	cfg = cfg.normalize()

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		// 最后一次尝试不需要等待
		if attempt < cfg.MaxAttempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}

	return lastErr
}
