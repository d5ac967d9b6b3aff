package events

import (
	"context"
	"time"

	"github.com/maumercado/sayathing-queue/internal/logger"
)

// Notifier is a best-effort, non-blocking task lifecycle notifier. A nil
// *Notifier is valid and Notify becomes a no-op, so wiring event
// publishing is entirely optional.
type Notifier struct {
	publisher Publisher
	timeout   time.Duration
}

// NewNotifier wraps a Publisher. publisher may be nil, in which case the
// returned Notifier discards every event.
func NewNotifier(publisher Publisher) *Notifier {
	return &Notifier{publisher: publisher, timeout: 2 * time.Second}
}

// Notify publishes a task lifecycle event on a detached goroutine so a
// slow or unreachable broker never blocks the caller (queue mutations
// must not wait on pub/sub delivery). Failures are logged, never
// returned.
func (n *Notifier) Notify(eventType EventType, taskID, state string, extra map[string]interface{}) {
	if n == nil || n.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.publisher.Publish(ctx, NewEvent(eventType, TaskEventData(taskID, state, extra))); err != nil {
			logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("failed to publish task event")
		}
	}()
}
