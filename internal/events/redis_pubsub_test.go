package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisPubSub(t *testing.T) {
	// nil client: construction should still succeed, only operations fail.
	pubsub := NewRedisPubSub(nil)

	assert.NotNil(t, pubsub)
	assert.Nil(t, pubsub.client)
	assert.NotNil(t, pubsub.subscribers)
	assert.Len(t, pubsub.subscribers, 0)
}

func TestRedisPubSub_channelName(t *testing.T) {
	pubsub := NewRedisPubSub(nil)

	tests := []struct {
		eventType EventType
		expected  string
	}{
		{EventTaskEnqueued, "sayathing:events:task.enqueued"},
		{EventTaskStarted, "sayathing:events:task.started"},
		{EventTaskCompleted, "sayathing:events:task.completed"},
		{EventTaskDiscarded, "sayathing:events:task.discarded"},
		{EventTaskCancelled, "sayathing:events:task.cancelled"},
		{EventTaskRetrying, "sayathing:events:task.retrying"},
		{EventWorkerJoined, "sayathing:events:worker.joined"},
		{EventWorkerLeft, "sayathing:events:worker.left"},
		{EventQueueDepth, "sayathing:events:queue.depth"},
	}

	for _, tc := range tests {
		t.Run(string(tc.eventType), func(t *testing.T) {
			assert.Equal(t, tc.expected, pubsub.channelName(tc.eventType))
		})
	}
}

func TestRedisPubSub_Close_EmptySubscribers(t *testing.T) {
	pubsub := NewRedisPubSub(nil)

	assert.NoError(t, pubsub.Close())
	assert.Len(t, pubsub.subscribers, 0)
}

func TestChannelPrefix(t *testing.T) {
	assert.Equal(t, "sayathing:events:", channelPrefix)
}
