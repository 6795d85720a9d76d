// Package store 提供 Saga 实例存储的内存与 SQL 实现
package store

import (
	"context"
	"fmt"
	"sync"

	"ordersaga/saga"
)

// MemoryStore 内存 Saga 实例存储（测试与单进程示例用）
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*saga.SagaInstance
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*saga.SagaInstance),
	}
}

// Save 持久化新实例
func (s *MemoryStore) Save(ctx context.Context, instance *saga.SagaInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[instance.SagaID]; exists {
		return fmt.Errorf("saga %s already exists", instance.SagaID)
	}
	s.instances[instance.SagaID] = instance.Clone()
	return nil
}

// Get 按 sagaID 读取实例副本
func (s *MemoryStore) Get(ctx context.Context, sagaID string) (*saga.SagaInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	instance, ok := s.instances[sagaID]
	if !ok {
		return nil, saga.ErrSagaNotFound
	}
	return instance.Clone(), nil
}

// Update 更新实例（仅当存储中的实例仍为非终态）
func (s *MemoryStore) Update(ctx context.Context, instance *saga.SagaInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.instances[instance.SagaID]
	if !ok {
		return saga.ErrSagaNotFound
	}
	if current.IsTerminal() {
		return saga.ErrSagaTerminal
	}
	s.instances[instance.SagaID] = instance.Clone()
	return nil
}

// MarkTimedOut 原子地将非终态实例标记为 TIMED_OUT
//
// 互斥锁内完成检查与标记，与 Update 串行化。
func (s *MemoryStore) MarkTimedOut(ctx context.Context, sagaID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.instances[sagaID]
	if !ok {
		return false, nil
	}
	if instance.IsTerminal() {
		return false, nil
	}
	instance.MarkTimedOut(reason)
	return true, nil
}
