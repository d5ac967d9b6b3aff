package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/maumercado/sayathing-queue/internal/logger"
	"github.com/maumercado/sayathing-queue/internal/queue"
	"github.com/maumercado/sayathing-queue/internal/task"
)

// TaskHandler adapts the Queue's read/write operations to HTTP. It is a
// thin adapter: all state-machine and concurrency logic lives in
// package queue.
type TaskHandler struct {
	queue     queue.Queue
	batchSize int
}

func NewTaskHandler(q queue.Queue, batchSize int) *TaskHandler {
	return &TaskHandler{queue: q, batchSize: batchSize}
}

// CreateResponse is the POST /tasks response body.
type CreateResponse struct {
	TaskIDs []string `json:"task_ids"`
}

// Create handles POST /tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req task.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "items must not be empty")
		return
	}
	if h.batchSize > 0 && len(req.Items) > h.batchSize {
		respondError(w, http.StatusBadRequest, "items exceeds batch size limit")
		return
	}
	for _, it := range req.Items {
		if it.Text == "" || it.VoiceID == "" {
			respondError(w, http.StatusBadRequest, "each item requires text and voice_id")
			return
		}
	}

	t, err := req.ToTask()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid item payload")
		return
	}

	ids, err := h.queue.Enqueue(r.Context(), []*task.Task{t})
	if err != nil {
		logger.Error().Err(err).Msg("failed to enqueue task")
		respondError(w, http.StatusInternalServerError, "failed to enqueue task")
		return
	}

	respondJSON(w, http.StatusCreated, CreateResponse{TaskIDs: ids})
}

// Get handles GET /tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.queue.GetTask(r.Context(), id)
	if err != nil {
		respondQueueError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// ListResponse is the GET /tasks response body.
type ListResponse struct {
	Tasks      []*task.Task `json:"tasks"`
	NextCursor string       `json:"next_cursor"`
}

// List handles GET /tasks?limit=&cursor=&state=.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			respondError(w, http.StatusBadRequest, "limit must be an integer in [1,100]")
			return
		}
		limit = n
	}
	cursor := r.URL.Query().Get("cursor")

	stateParam := r.URL.Query().Get("state")
	if stateParam == "" {
		tasks, next, err := h.queue.ListTasks(r.Context(), limit, cursor)
		if err != nil {
			logger.Error().Err(err).Msg("failed to list tasks")
			respondError(w, http.StatusInternalServerError, "failed to list tasks")
			return
		}
		respondJSON(w, http.StatusOK, ListResponse{Tasks: tasks, NextCursor: next})
		return
	}

	state, ok := parseStateFilter(stateParam)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown state filter")
		return
	}
	tasks, next, err := h.queue.ListTasksByState(r.Context(), state, limit, cursor)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list tasks")
		respondError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	respondJSON(w, http.StatusOK, ListResponse{Tasks: tasks, NextCursor: next})
}

// parseStateFilter accepts either the state's name (case-insensitive) or
// its numeric wire value.
func parseStateFilter(raw string) (task.State, bool) {
	if s, ok := task.ParseState(raw); ok {
		return s, true
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if s, ok := task.IsValid(n); ok {
			return s, true
		}
	}
	return 0, false
}

func respondQueueError(w http.ResponseWriter, err error) {
	switch {
	case task.IsNotFound(err):
		respondError(w, http.StatusNotFound, "task not found")
	case task.IsInvalidStateTransition(err):
		respondError(w, http.StatusConflict, "invalid state transition")
	default:
		logger.Error().Err(err).Msg("queue operation failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: http.StatusText(status), Message: message})
}
