package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*Event
}

func (r *recordingPublisher) Publish(ctx context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error) {
	return nil, nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestNotifier_NilIsNoOp(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() {
		n.Notify(EventTaskEnqueued, "task-1", "pending", nil)
	})
}

func TestNotifier_NilPublisherIsNoOp(t *testing.T) {
	n := NewNotifier(nil)
	assert.NotPanics(t, func() {
		n.Notify(EventTaskEnqueued, "task-1", "pending", nil)
	})
}

func TestNotifier_PublishesAsynchronously(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifier(pub)

	n.Notify(EventTaskCompleted, "task-1", "completed", map[string]interface{}{"attempt_count": 1})

	require.Eventually(t, func() bool {
		return pub.count() == 1
	}, time.Second, 5*time.Millisecond)
}
