package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_Constants(t *testing.T) {
	assert.Equal(t, EventType("task.enqueued"), EventTaskEnqueued)
	assert.Equal(t, EventType("task.started"), EventTaskStarted)
	assert.Equal(t, EventType("task.completed"), EventTaskCompleted)
	assert.Equal(t, EventType("task.retrying"), EventTaskRetrying)
	assert.Equal(t, EventType("task.discarded"), EventTaskDiscarded)
	assert.Equal(t, EventType("task.cancelled"), EventTaskCancelled)
	assert.Equal(t, EventType("worker.joined"), EventWorkerJoined)
	assert.Equal(t, EventType("worker.left"), EventWorkerLeft)
	assert.Equal(t, EventType("queue.depth"), EventQueueDepth)
}

func TestNewEvent(t *testing.T) {
	data := map[string]interface{}{
		"task_id": "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		"state":   "pending",
	}

	event := NewEvent(EventTaskEnqueued, data)

	assert.Equal(t, EventTaskEnqueued, event.Type)
	assert.Equal(t, data, event.Data)
	assert.False(t, event.Timestamp.IsZero())
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)
}

func TestEvent_ToJSON(t *testing.T) {
	event := &Event{
		Type:      EventTaskCompleted,
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Data: map[string]interface{}{
			"task_id": "task-456",
			"state":   "completed",
		},
	}

	data, err := event.ToJSON()
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, "task.completed", parsed["type"])
	assert.NotEmpty(t, parsed["timestamp"])
	assert.NotNil(t, parsed["data"])
}

func TestFromJSON(t *testing.T) {
	jsonData := `{
		"type": "task.discarded",
		"timestamp": "2024-01-15T10:30:00Z",
		"data": {"task_id": "task-789", "error": "timeout"}
	}`

	event, err := FromJSON([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, EventTaskDiscarded, event.Type)
	assert.Equal(t, "task-789", event.Data["task_id"])
	assert.Equal(t, "timeout", event.Data["error"])
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte("invalid json"))
	assert.Error(t, err)
}

func TestEvent_RoundTrip(t *testing.T) {
	original := NewEvent(EventWorkerJoined, map[string]interface{}{
		"worker_id": "primary-1",
		"state":     "active",
	})

	data, err := original.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, original.Type, restored.Type)
	assert.Equal(t, original.Data["worker_id"], restored.Data["worker_id"])
	assert.Equal(t, original.Data["state"], restored.Data["state"])
}

func TestTaskEventData(t *testing.T) {
	data := TaskEventData("task-123", "retryable", map[string]interface{}{
		"attempt_count": 1,
		"error":         "timeout",
	})

	assert.Equal(t, "task-123", data["task_id"])
	assert.Equal(t, "retryable", data["state"])
	assert.Equal(t, 1, data["attempt_count"])
	assert.Equal(t, "timeout", data["error"])
}

func TestTaskEventData_NoExtra(t *testing.T) {
	data := TaskEventData("task-456", "pending", nil)

	assert.Equal(t, "task-456", data["task_id"])
	assert.Equal(t, "pending", data["state"])
	assert.Len(t, data, 2)
}

func TestWorkerEventData(t *testing.T) {
	data := WorkerEventData("primary-1", "active", map[string]interface{}{
		"batch_size": 10,
	})

	assert.Equal(t, "primary-1", data["worker_id"])
	assert.Equal(t, "active", data["state"])
	assert.Equal(t, 10, data["batch_size"])
}

func TestWorkerEventData_NoExtra(t *testing.T) {
	data := WorkerEventData("retry-1", "stopped", nil)

	assert.Equal(t, "retry-1", data["worker_id"])
	assert.Equal(t, "stopped", data["state"])
	assert.Len(t, data, 2)
}

func TestQueueDepthData(t *testing.T) {
	data := QueueDepthData(42, 7)

	assert.Equal(t, int64(42), data["pending"])
	assert.Equal(t, int64(7), data["processing"])
}
