package task

import (
	"encoding/json"

	"github.com/oklog/ulid/v2"
)

// TaskItem is one unit of synthesis work within a Task. Request is opaque
// to the queue — it is only interpreted by the Synthesizer. ResponseURL is
// the return channel: the worker writes the synthesized audio back into it
// (as an inline data URL) before the task is marked COMPLETED.
type TaskItem struct {
	Request     json.RawMessage `json:"request"`
	ResponseURL string          `json:"response_url"`
}

// Task is a unit of work containing one or more items to synthesize. It
// carries its own lifecycle state (see State).
type Task struct {
	ID             string     `json:"id"`
	State          State      `json:"state"`
	ScheduleAt     int64      `json:"schedule_at"`
	AttemptCount   int        `json:"attempt_count"`
	AttemptedAt    *int64     `json:"attempted_at,omitempty"`
	AttemptedError []string   `json:"attempted_error"`
	FinalizedAt    *int64     `json:"finalized_at,omitempty"`
	Items          []TaskItem `json:"items"`
	ItemCount      int        `json:"item_count"`
	CreatedAt      int64      `json:"created_at"`
	UpdatedAt      int64      `json:"updated_at"`
}

// NewID mints a lexicographically sortable task identifier.
func NewID() string {
	return ulid.Make().String()
}

// New creates a Task in the PENDING state with the given items. Timestamps
// and id are left zero/empty for Enqueue to fill in.
func New(items []TaskItem) *Task {
	return &Task{
		State:          StatePending,
		AttemptedError: []string{},
		Items:          items,
		ItemCount:      len(items),
	}
}

// CreateTaskItemRequest is the wire shape of one item in a task submission.
type CreateTaskItemRequest struct {
	Text     string            `json:"text"`
	VoiceID  string            `json:"voice_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateTaskRequest is the HTTP adapter's POST /tasks body.
type CreateTaskRequest struct {
	Items []CreateTaskItemRequest `json:"items"`
}

// ToTask converts a submission request into a Task ready for Enqueue. Each
// item's Request carries the marshaled CreateTaskItemRequest so the worker
// can later decode it into a Synthesizer call.
func (r *CreateTaskRequest) ToTask() (*Task, error) {
	items := make([]TaskItem, 0, len(r.Items))
	for _, it := range r.Items {
		raw, err := json.Marshal(it)
		if err != nil {
			return nil, err
		}
		items = append(items, TaskItem{Request: raw})
	}
	return New(items), nil
}
