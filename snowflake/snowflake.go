// Package snowflake 提供按毫秒时间戳+工作节点+序列号布局的有序 ID 生成器，
// 用于订单号分配。同一节点内生成的 ID 单调递增，可直接按 ID 排序还原下单顺序。
package snowflake

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// 起始时间戳 (2025-01-01 00:00:00 UTC)
	epoch int64 = 1735689600000

	workerIDBits = 10
	sequenceBits = 12

	maxWorkerID = -1 ^ (-1 << workerIDBits) // 1023
	maxSequence = -1 ^ (-1 << sequenceBits) // 4095

	workerIDShift      = sequenceBits
	timestampLeftShift = sequenceBits + workerIDBits
)

var (
	// ErrWorkerIDOutOfRange 工作节点 id 超出 [0, 1023]
	ErrWorkerIDOutOfRange = errors.New("snowflake: worker id out of range")
	// ErrClockMovedBackwards 系统时钟回拨，拒绝生成以避免重复 id
	ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")
)

// Generator 有序 ID 生成器，并发安全。
type Generator struct {
	mu            sync.Mutex
	workerID      int64
	sequence      int64
	lastTimestamp int64
}

// NewGenerator 创建生成器
//
// 参数:
//   - workerID: 工作节点 id，取值 [0, 1023]，多实例部署时须互不相同
func NewGenerator(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, ErrWorkerIDOutOfRange
	}
	return &Generator{workerID: workerID, lastTimestamp: -1}, nil
}

// NextID 生成下一个 ID
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.lastTimestamp {
		return 0, ErrClockMovedBackwards
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// 当前毫秒内序列号耗尽，自旋到下一毫秒
			for now <= g.lastTimestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = now

	id := ((now - epoch) << timestampLeftShift) |
		(g.workerID << workerIDShift) |
		g.sequence
	return id, nil
}

// NextOrderNo 生成带前缀的订单号，如 SO-112233445566
//
// 参数:
//   - prefix: 业务前缀，如 "SO"
func (g *Generator) NextOrderNo(prefix string) (string, error) {
	id, err := g.NextID()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d", prefix, id), nil
}

// Decompose 拆解 ID 的各组成部分，用于排障
func Decompose(id int64) (timestamp time.Time, workerID, sequence int64) {
	ms := (id >> timestampLeftShift) + epoch
	return time.UnixMilli(ms), (id >> workerIDShift) & maxWorkerID, id & maxSequence
}
