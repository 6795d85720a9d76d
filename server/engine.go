package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"ordersaga/logging"
)

// IServer 编排进程必须实现的生命周期钩子。
//
// 典型实现是一个组合了 saga 编排器或参与者执行器的进程结构体：
//   - LoadConfig 解析配置
//   - SetupDependencies 连接存储、消息传输、协作服务客户端
//   - StartBackgroundTasks 启动超时监控与命令/结果订阅
//   - Run 阻塞运行主循环，返回即视为主动退出
//   - Shutdown 停止订阅、关闭连接、落盘日志
type IServer interface {
	Name() string
	LoadConfig() error
	SetupDependencies(ctx context.Context) error
	StartBackgroundTasks(ctx context.Context) error
	Run(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Engine 按固定顺序驱动 IServer 的各阶段，并处理进程信号。
type Engine struct {
	server  IServer
	options *Options
	logger  logging.Logger

	mu    sync.Mutex
	state State

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewEngine 创建生命周期引擎
func NewEngine(server IServer, opts ...Option) *Engine {
	options := DefaultOptions()
	if name := server.Name(); name != "" {
		options.Name = name
	}
	for _, o := range opts {
		o(options)
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.ComponentLogger("server." + options.Name)
	}
	return &Engine{
		server:  server,
		options: options,
		logger:  logger,
		state:   StatePending,
		stopCh:  make(chan struct{}),
	}
}

// State 返回当前状态
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Stop 以编程方式触发优雅关闭，与收到 SIGTERM 等价。
// 可重复调用，仅第一次生效。
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Start 执行标准启动流程并阻塞至进程退出
//
// 返回:
//   - error: 任一阶段失败时的错误；信号触发的正常退出返回 nil
func (e *Engine) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.logger.Info(ctx, "进程启动",
		logging.String("version", e.options.Version),
		logging.String("instance", e.options.InstanceID))

	e.setState(StateInitializing)
	if err := e.server.LoadConfig(); err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 依赖装配限时，防止连接类初始化卡死
	setupCtx, setupCancel := context.WithTimeout(ctx, e.options.StartupTimeout)
	err := e.server.SetupDependencies(setupCtx)
	setupCancel()
	if err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	e.setState(StatePrepared)

	for _, hook := range e.options.OnBeforeStart {
		if err := hook(ctx); err != nil {
			e.setState(StateError)
			return fmt.Errorf("before-start hook failed: %w", err)
		}
	}

	if err := e.server.StartBackgroundTasks(ctx); err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to start background tasks: %w", err)
	}

	e.setState(StateRunning)
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- e.server.Run(ctx)
	}()

	for _, hook := range e.options.OnAfterStart {
		if err := hook(ctx); err != nil {
			e.logger.Warn(ctx, "after-start 回调失败", logging.Error(err))
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(quit)

	var runErr error
	select {
	case err := <-runErrCh:
		if err != nil {
			e.logger.Error(ctx, "主循环异常退出", logging.Error(err))
			runErr = err
		} else {
			e.logger.Info(ctx, "主循环正常退出")
		}
	case sig := <-quit:
		e.logger.Info(ctx, "收到进程信号", logging.String("signal", sig.String()))
	case <-e.stopCh:
		e.logger.Info(ctx, "收到停止请求")
	}
	cancel()

	e.setState(StateStopping)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), e.options.ShutdownTimeout)
	defer shutdownCancel()

	for _, hook := range e.options.OnBeforeStop {
		if err := hook(shutdownCtx); err != nil {
			e.logger.Warn(shutdownCtx, "before-stop 回调失败", logging.Error(err))
		}
	}

	if err := e.server.Shutdown(shutdownCtx); err != nil {
		e.setState(StateError)
		return fmt.Errorf("shutdown failed: %w", err)
	}

	for _, hook := range e.options.OnAfterStop {
		if err := hook(shutdownCtx); err != nil {
			e.logger.Warn(shutdownCtx, "after-stop 回调失败", logging.Error(err))
		}
	}

	if runErr != nil {
		e.setState(StateError)
		return fmt.Errorf("server execution error: %w", runErr)
	}
	e.setState(StateStopped)
	e.logger.Info(context.Background(), "进程退出")
	return nil
}
