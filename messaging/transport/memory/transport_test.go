package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersaga/messaging"
)

// recordingHandler 记录收到的消息（按分区键分组）
type recordingHandler struct {
	mu       sync.Mutex
	received map[string][]string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{received: make(map[string][]string)}
}

func (h *recordingHandler) Handle(ctx context.Context, message messaging.IMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := message.GetPartitionKey()
	h.received[key] = append(h.received[key], message.GetID())
	return nil
}

func (h *recordingHandler) Type() string { return "recording" }

func (h *recordingHandler) get(key string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.received[key]))
	copy(out, h.received[key])
	return out
}

// TestMemoryTransport_PublishSubscribe 测试基本发布订阅
func TestMemoryTransport_PublishSubscribe(t *testing.T) {
	transport := NewMemoryTransport(16, 2)
	handler := newRecordingHandler()

	require.NoError(t, transport.Subscribe("command", handler))
	require.NoError(t, transport.Start(context.Background()))

	msg := messaging.NewMessage("m1", "command", "saga-1", "payload")
	require.NoError(t, transport.Publish(context.Background(), msg))

	require.NoError(t, transport.Close())
	assert.Equal(t, []string{"m1"}, handler.get("saga-1"))
}

// TestMemoryTransport_PartitionOrdering 测试同一分区键的顺序保证
func TestMemoryTransport_PartitionOrdering(t *testing.T) {
	transport := NewMemoryTransport(256, 8)
	handler := newRecordingHandler()

	require.NoError(t, transport.Subscribe("command", handler))
	require.NoError(t, transport.Start(context.Background()))

	const perKey = 50
	keys := []string{"saga-a", "saga-b", "saga-c", "saga-d"}

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			for i := 0; i < perKey; i++ {
				msg := messaging.NewMessage(fmt.Sprintf("%s-%03d", key, i), "command", key, nil)
				_ = transport.Publish(context.Background(), msg)
			}
		}(key)
	}
	wg.Wait()

	require.NoError(t, transport.Close())

	// 每个分区键内必须保持发布顺序
	for _, key := range keys {
		got := handler.get(key)
		require.Len(t, got, perKey, "key %s", key)
		for i := 0; i < perKey; i++ {
			assert.Equal(t, fmt.Sprintf("%s-%03d", key, i), got[i], "key %s position %d", key, i)
		}
	}
}

// TestMemoryTransport_NotRunning 测试未启动时发布失败
func TestMemoryTransport_NotRunning(t *testing.T) {
	transport := NewMemoryTransport(4, 1)
	msg := messaging.NewMessage("m1", "command", "saga-1", nil)

	err := transport.Publish(context.Background(), msg)
	assert.Error(t, err)
}

// TestMemoryTransport_CloseDrainsQueue 测试关闭时清空缓冲
func TestMemoryTransport_CloseDrainsQueue(t *testing.T) {
	transport := NewMemoryTransport(100, 1)
	handler := newRecordingHandler()

	require.NoError(t, transport.Subscribe("command", handler))
	require.NoError(t, transport.Start(context.Background()))

	for i := 0; i < 20; i++ {
		msg := messaging.NewMessage(fmt.Sprintf("m%02d", i), "command", "saga-1", nil)
		require.NoError(t, transport.Publish(context.Background(), msg))
	}

	require.NoError(t, transport.Close())
	assert.Len(t, handler.get("saga-1"), 20)
}

// TestMemoryTransport_Stats 测试统计信息
func TestMemoryTransport_Stats(t *testing.T) {
	transport := NewMemoryTransport(8, 3)
	handler := newRecordingHandler()

	require.NoError(t, transport.Subscribe("command", handler))
	require.NoError(t, transport.Subscribe("result", handler))
	require.NoError(t, transport.Start(context.Background()))
	defer transport.Close()

	// 等待 Worker 进入消费循环后检查状态
	time.Sleep(10 * time.Millisecond)

	stats := transport.Stats()
	assert.True(t, stats.Running)
	assert.Equal(t, 2, stats.HandlerCount)
	assert.Equal(t, 3, stats.WorkerCount)
	assert.ElementsMatch(t, []string{"command", "result"}, stats.MessageTypes)
}
