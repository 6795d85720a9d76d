package redisstreams

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersaga/messaging"
)

// TestEncodeDecodeRoundTrip 测试 Stream 条目编解码往返
func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := &messaging.Message{
		ID:           "msg-100",
		Type:         "saga.result.secure_stock",
		PartitionKey: "saga-xyz",
		Timestamp:    time.Now(),
		Payload: map[string]interface{}{
			"sagaId":  "saga-xyz",
			"success": true,
		},
		Metadata: map[string]interface{}{
			"source": "inventory",
		},
	}

	values, err := encodeMessage(original)
	require.NoError(t, err)
	assert.Equal(t, "saga-xyz", values["partition_key"])

	decoded, err := decodeMessage(redis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)

	assert.Equal(t, original.ID, decoded.GetID())
	assert.Equal(t, original.Type, decoded.GetType())
	assert.Equal(t, original.PartitionKey, decoded.GetPartitionKey())
	assert.Equal(t, original.Timestamp.UnixNano(), decoded.GetTimestamp().UnixNano())
	assert.Equal(t, "inventory", decoded.GetMetadata()["source"])

	payload, ok := decoded.GetPayload().(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "saga-xyz", payload["sagaId"])
	assert.Equal(t, true, payload["success"])
}

// TestDecodeFallbackID 测试缺失 id 字段时回退到条目 ID
func TestDecodeFallbackID(t *testing.T) {
	decoded, err := decodeMessage(redis.XMessage{
		ID: "2-0",
		Values: map[string]interface{}{
			"type": "saga.event.order_completed",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "2-0", decoded.GetID())
	assert.Equal(t, "saga.event.order_completed", decoded.GetType())
}

// TestDecodeStringTimestamp 测试字符串时间戳解析
func TestDecodeStringTimestamp(t *testing.T) {
	now := time.Now()
	decoded, err := decodeMessage(redis.XMessage{
		ID: "3-0",
		Values: map[string]interface{}{
			"id":        "msg-3",
			"type":      "saga.command.use_point",
			"timestamp": "1693465200000000000",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1693465200000000000), decoded.GetTimestamp().UnixNano())
	assert.False(t, decoded.GetTimestamp().After(now.Add(time.Hour)))
}
