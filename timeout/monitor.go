package timeout

import (
	"context"
	"errors"
	"sync"
	"time"

	"ordersaga/logging"
)

// TimeoutHandler 处理到期的 Saga（由编排器的 FailTimedOut 实现）
type TimeoutHandler func(ctx context.Context, sagaIDs []string) error

// MonitorConfig 监控器配置
type MonitorConfig struct {
	Index   IDeadlineIndex
	Handler TimeoutHandler

	// Interval 扫描间隔，默认 60s
	Interval time.Duration

	Logger logging.Logger
}

// Monitor Saga 超时监控器
//
// 固定间隔扫描索引中已到期的 Saga，交给处理函数强制失败，
// 随后无论结果如何都从索引移除，避免无界增长与重复扫描。
// 终态转换的唯一性由存储层的原子标记保证，监控器本身无需加锁。
type Monitor struct {
	index   IDeadlineIndex
	handler TimeoutHandler
	tick    time.Duration
	logger  logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor 创建监控器
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Index == nil {
		return nil, errors.New("monitor requires a deadline index")
	}
	if cfg.Handler == nil {
		return nil, errors.New("monitor requires a timeout handler")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("saga.timeout")
	}
	return &Monitor{
		index:   cfg.Index,
		handler: cfg.Handler,
		tick:    cfg.Interval,
		logger:  cfg.Logger,
	}, nil
}

// Start 启动后台扫描
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("timeout monitor already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.loop(runCtx)
	return nil
}

// Stop 停止扫描并等待当前一轮结束
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick 执行一轮扫描（导出供测试与外部调度器直接触发）
//
// 流程：查询到期 ID → 交给处理函数 → 无论结果如何移除。
func (m *Monitor) Tick(ctx context.Context) {
	now := time.Now()
	due, err := m.index.Due(ctx, now)
	if err != nil {
		m.logger.Error(ctx, "failed to query due sagas", logging.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	m.logger.Info(ctx, "forcing timed out sagas",
		logging.Int("count", len(due)))

	if err := m.handler(ctx, due); err != nil {
		m.logger.Error(ctx, "timeout handler failed", logging.Error(err))
	}

	// 已终态或处理失败的 Saga 同样移除：存储层的原子标记
	// 已经决定了终态归属，留在索引里只会反复空扫
	if err := m.index.Remove(ctx, due...); err != nil {
		m.logger.Error(ctx, "failed to remove processed deadlines", logging.Error(err))
	}
}
