// Package ledger 提供参与者的幂等台账：
// 记录已应用的 (sagaID, commandType) 对，作为“已处理”的唯一事实来源。
package ledger

import (
	"context"
	"sync"
	"time"
)

// Entry 台账条目
type Entry struct {
	SagaID      string    `json:"saga_id" db:"saga_id"`
	CommandType string    `json:"command_type" db:"command_type"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}

// ILedger 幂等台账接口
//
// (sagaID, commandType) 对唯一；条目的存在与否是“已应用”的
// 唯一事实来源——参与者进程可能重启或收到重投，内存状态不可信。
type ILedger interface {
	// Contains 检查命令是否已应用
	Contains(ctx context.Context, sagaID, commandType string) (bool, error)

	// Record 记录命令已应用
	//
	// SQL 实现应与业务效果在同一本地事务中写入（RecordTx）；
	// 本方法供无事务语义的实现（内存）使用。
	Record(ctx context.Context, sagaID, commandType string) error
}

// MemoryLedger 内存台账（测试与单进程示例用）
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[ledgerKey]Entry
}

type ledgerKey struct {
	sagaID      string
	commandType string
}

// NewMemoryLedger 创建内存台账
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[ledgerKey]Entry),
	}
}

// Contains 检查命令是否已应用
func (l *MemoryLedger) Contains(ctx context.Context, sagaID, commandType string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[ledgerKey{sagaID, commandType}]
	return ok, nil
}

// Record 记录命令已应用（重复记录为空操作）
func (l *MemoryLedger) Record(ctx context.Context, sagaID, commandType string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{sagaID, commandType}
	if _, ok := l.entries[key]; ok {
		return nil
	}
	l.entries[key] = Entry{
		SagaID:      sagaID,
		CommandType: commandType,
		ProcessedAt: time.Now(),
	}
	return nil
}

// Size 返回台账条目数（测试用）
func (l *MemoryLedger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
