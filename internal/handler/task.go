package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/upkeepqr/maintcue/internal/auth"
	"github.com/upkeepqr/maintcue/internal/model"
	"github.com/upkeepqr/maintcue/internal/recurrence"
	"github.com/upkeepqr/maintcue/internal/store"
)

// TaskAdvancer schedules the next occurrence of a recurring task.
type TaskAdvancer interface {
	Advance(ctx context.Context, task *model.TaskAssignment) (*model.TaskAssignment, error)
}

// TaskHandler serves the homeowner's task list.
type TaskHandler struct {
	tasks   *store.TaskStore
	planner TaskAdvancer
	logger  *slog.Logger
	now     func() time.Time
}

func NewTaskHandler(ts *store.TaskStore, planner TaskAdvancer, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: ts, planner: planner, logger: logger, now: time.Now}
}

type closeTaskResponse struct {
	Task *model.TaskAssignment `json:"task"`
	Next *model.TaskAssignment `json:"next,omitempty"`
}

// taskView adds a readable repeat interval, such as "Quarterly", to a task.
type taskView struct {
	model.TaskAssignment
	Repeats string `json:"repeats,omitempty"`
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.ListByHousehold(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		v := taskView{TaskAssignment: t}
		if t.RecurrenceRule != "" {
			if rule, err := recurrence.Parse(t.RecurrenceRule); err == nil {
				v.Repeats = rule.Describe()
			}
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.tasks.Complete)
}

func (h *TaskHandler) Skip(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.tasks.Skip)
}

type closeFunc func(ctx context.Context, id int64, at time.Time) (*model.TaskAssignment, error)

// close completes or skips one of the caller's open tasks, then schedules
// the next occurrence if the task recurs.
func (h *TaskHandler) close(w http.ResponseWriter, r *http.Request, fn closeFunc) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.tasks.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get task", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if existing == nil || existing.HouseholdID != auth.HouseholdID(r.Context()) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	task, err := fn(r.Context(), id, h.now())
	if err != nil {
		h.logger.Error("close task", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	if task == nil {
		writeError(w, http.StatusConflict, "task is already closed")
		return
	}

	resp := closeTaskResponse{Task: task}
	next, err := h.planner.Advance(r.Context(), task)
	if err != nil {
		h.logger.Error("schedule next occurrence", "task_id", id, "error", err)
	}
	resp.Next = next

	h.logger.Info("task closed", "task_id", id, "status", task.Status, "household_id", task.HouseholdID)
	writeJSON(w, http.StatusOK, resp)
}
