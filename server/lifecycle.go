// Package server 提供编排进程（orchestrator / participant）的生命周期引擎。
//
// 进程实现 IServer 的各阶段钩子，Engine 负责标准启动算法：
// 配置 -> 依赖装配 -> 后台任务（超时监控、消息订阅）-> 主循环 -> 信号等待 -> 优雅关闭。
package server

import (
	"context"
	"time"

	"ordersaga/logging"
)

// State 引擎生命周期状态
type State int

const (
	// StatePending 尚未启动
	StatePending State = iota
	// StateInitializing 正在加载配置
	StateInitializing
	// StatePrepared 依赖装配完成，等待运行
	StatePrepared
	// StateRunning 主循环运行中
	StateRunning
	// StateStopping 正在优雅关闭
	StateStopping
	// StateStopped 已停止
	StateStopped
	// StateError 启动或运行失败
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateInitializing:
		return "Initializing"
	case StatePrepared:
		return "Prepared"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Hook 生命周期回调，ctx 携带所处阶段的超时控制
type Hook func(ctx context.Context) error

// Options 引擎配置
type Options struct {
	Name    string
	Version string
	// InstanceID 进程实例标识，多实例部署时用于日志区分与 snowflake 工作节点分配
	InstanceID string

	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration

	Logger logging.Logger

	// 生命周期回调
	OnBeforeStart []Hook
	OnAfterStart  []Hook
	OnBeforeStop  []Hook
	OnAfterStop   []Hook
}

// Option 配置修改函数
type Option func(*Options)

// DefaultOptions 返回默认配置
func DefaultOptions() *Options {
	return &Options{
		Name:            "ordersaga",
		Version:         "0.0.0",
		StartupTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// WithName 设置进程名称
func WithName(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Name = name
		}
	}
}

// WithVersion 设置版本号
func WithVersion(version string) Option {
	return func(o *Options) { o.Version = version }
}

// WithInstanceID 设置实例标识
func WithInstanceID(id string) Option {
	return func(o *Options) { o.InstanceID = id }
}

// WithLogger 注入日志器
func WithLogger(logger logging.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithStartupTimeout 设置依赖装配阶段超时
func WithStartupTimeout(t time.Duration) Option {
	return func(o *Options) { o.StartupTimeout = t }
}

// WithShutdownTimeout 设置优雅关闭超时
func WithShutdownTimeout(t time.Duration) Option {
	return func(o *Options) { o.ShutdownTimeout = t }
}

// WithBeforeStart 追加主循环启动前回调
func WithBeforeStart(fn Hook) Option {
	return func(o *Options) { o.OnBeforeStart = append(o.OnBeforeStart, fn) }
}

// WithAfterStart 追加主循环启动后回调
func WithAfterStart(fn Hook) Option {
	return func(o *Options) { o.OnAfterStart = append(o.OnAfterStart, fn) }
}

// WithBeforeStop 追加关闭前回调
func WithBeforeStop(fn Hook) Option {
	return func(o *Options) { o.OnBeforeStop = append(o.OnBeforeStop, fn) }
}

// WithAfterStop 追加关闭后回调
func WithAfterStop(fn Hook) Option {
	return func(o *Options) { o.OnAfterStop = append(o.OnAfterStop, fn) }
}
