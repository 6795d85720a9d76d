// Package timeout 提供 Saga 超时监控：
// 按截止时间排序的待定 Saga 索引，加上定期扫描强制失败的监控器。
package timeout

import (
	"context"
	"sort"
	"sync"
	"time"
)

// IDeadlineIndex 截止时间索引接口
//
// 按截止时间（score）排序，支持范围查询（≤ now）与
// 按 sagaID 的原子移除。
type IDeadlineIndex interface {
	// Add 注册 Saga 的截止时间（重复注册覆盖）
	Add(ctx context.Context, sagaID string, deadline time.Time) error

	// Due 返回截止时间不晚于 now 的全部 sagaID
	Due(ctx context.Context, now time.Time) ([]string, error)

	// Remove 移除若干 sagaID（不存在的为空操作）
	Remove(ctx context.Context, sagaIDs ...string) error
}

// MemoryIndex 内存截止时间索引（测试与单进程示例用）
type MemoryIndex struct {
	mu        sync.RWMutex
	deadlines map[string]time.Time
}

// NewMemoryIndex 创建内存索引
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		deadlines: make(map[string]time.Time),
	}
}

// Add 注册截止时间
func (i *MemoryIndex) Add(ctx context.Context, sagaID string, deadline time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.deadlines[sagaID] = deadline
	return nil
}

// Due 返回已到期的 sagaID（按截止时间升序）
func (i *MemoryIndex) Due(ctx context.Context, now time.Time) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var due []string
	for sagaID, deadline := range i.deadlines {
		if !deadline.After(now) {
			due = append(due, sagaID)
		}
	}
	sort.Slice(due, func(a, b int) bool {
		da, db := i.deadlines[due[a]], i.deadlines[due[b]]
		if da.Equal(db) {
			return due[a] < due[b]
		}
		return da.Before(db)
	})
	return due, nil
}

// Remove 移除若干 sagaID
func (i *MemoryIndex) Remove(ctx context.Context, sagaIDs ...string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, sagaID := range sagaIDs {
		delete(i.deadlines, sagaID)
	}
	return nil
}

// Size 返回索引条目数（测试用）
func (i *MemoryIndex) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.deadlines)
}
