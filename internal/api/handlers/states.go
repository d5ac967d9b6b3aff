package handlers

import (
	"net/http"

	"github.com/maumercado/sayathing-queue/internal/task"
)

// stateDescription documents one entry in the GET /task-states
// enumeration.
type stateDescription struct {
	Name        string `json:"name"`
	Value       int    `json:"value"`
	Description string `json:"description"`
}

var taskStates = []stateDescription{
	{task.StatePending.String(), int(task.StatePending), "Queued, waiting to be claimed by a worker"},
	{task.StateProcessing.String(), int(task.StateProcessing), "Claimed by a worker and currently being synthesized"},
	{task.StateCompleted.String(), int(task.StateCompleted), "Finished successfully; items carry their response_url"},
	{task.StateRetryable.String(), int(task.StateRetryable), "Failed and waiting to be rescheduled with backoff"},
	{task.StateCancelled.String(), int(task.StateCancelled), "Cancelled by request before processing started"},
	{task.StateDiscarded.String(), int(task.StateDiscarded), "Exhausted its retry budget; can be resumed manually"},
}

// StatesHandler serves GET /task-states.
type StatesHandler struct{}

func NewStatesHandler() *StatesHandler {
	return &StatesHandler{}
}

func (h *StatesHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, taskStates)
}
