// Package cache 提供带 TTL 的进程内 LRU 缓存。
//
// 典型用途是缓存协作服务返回的只读数据（例如商品信息），
// 减少 saga 编排路径上的同步调用次数。
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config 缓存配置
type Config struct {
	// Name 缓存名称，用于日志与统计标识
	Name string
	// MaxSize 最大条目数，超出后按 LRU 淘汰；<=0 时使用默认值 1024
	MaxSize int
	// TTL 条目存活时间；<=0 表示永不过期
	TTL time.Duration
	// OnEvict 条目被淘汰或过期移除时回调，可为 nil
	OnEvict func(key string, value any)
}

// Stats 缓存运行统计
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time // 零值表示永不过期
}

// Cache 带 TTL 的 LRU 缓存，并发安全。
type Cache struct {
	cfg Config

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // 头部为最近使用

	hits      int64
	misses    int64
	evictions int64
}

// New 创建缓存实例
//
// 参数:
//   - cfg: 配置，零值字段使用默认值
//
// 返回:
//   - *Cache: 缓存实例
func New(cfg Config) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1024
	}
	return &Cache{
		cfg:   cfg,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Get 读取缓存条目
//
// 参数:
//   - key: 键
//
// 返回:
//   - any: 值，未命中时为 nil
//   - bool: 是否命中（过期视为未命中并移除条目）
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	ent := el.Value.(*entry)
	if !ent.expiresAt.IsZero() && time.Now().After(ent.expiresAt) {
		c.removeLocked(el)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return ent.value, true
}

// Set 写入缓存条目，已存在时覆盖并刷新 TTL
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.cfg.TTL > 0 {
		expiresAt = time.Now().Add(c.cfg.TTL)
	}

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el

	for len(c.items) > c.cfg.MaxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}
}

// Delete 删除指定键，不存在时为空操作
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Len 当前条目数（含尚未惰性清理的过期条目）
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats 返回统计快照
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.items),
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	ent := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, ent.key)
	if c.cfg.OnEvict != nil {
		c.cfg.OnEvict(ent.key, ent.value)
	}
}
