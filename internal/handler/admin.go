package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/upkeepqr/maintcue/internal/jobs"
	"github.com/upkeepqr/maintcue/internal/model"
	"github.com/upkeepqr/maintcue/internal/schedule"
	"github.com/upkeepqr/maintcue/internal/store"
)

const (
	dateLayout           = "2006-01-02"
	defaultReminderLimit = 100
	maxReminderLimit     = 1000
)

// JobRunner is the manual trigger surface of the job scheduler.
type JobRunner interface {
	TriggerReminderProcessing(ctx context.Context) jobs.Status
	TriggerOverdueUpdate(ctx context.Context) jobs.Status
	Statuses() []jobs.Status
	NextRun() time.Time
}

// TaskPlanner creates task assignments together with their reminders.
type TaskPlanner interface {
	CreateTask(ctx context.Context, in schedule.TaskInput) (*model.TaskAssignment, *model.Reminder, error)
}

// AdminHandler serves the operator API.
type AdminHandler struct {
	households *store.HouseholdStore
	tasks      *store.TaskStore
	reminders  *store.ReminderStore
	planner    TaskPlanner
	runner     JobRunner
	location   *time.Location
	logger     *slog.Logger
}

func NewAdminHandler(
	hs *store.HouseholdStore,
	ts *store.TaskStore,
	rs *store.ReminderStore,
	planner TaskPlanner,
	runner JobRunner,
	loc *time.Location,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		households: hs,
		tasks:      ts,
		reminders:  rs,
		planner:    planner,
		runner:     runner,
		location:   loc,
		logger:     logger,
	}
}

type householdRequest struct {
	Name                   string `json:"name"`
	Email                  string `json:"email"`
	Phone                  string `json:"phone"`
	ZipCode                string `json:"zip_code"`
	NotificationPreference string `json:"notification_preference"`
	SMSOptIn               bool   `json:"sms_opt_in"`
}

func (h *AdminHandler) ListHouseholds(w http.ResponseWriter, r *http.Request) {
	households, err := h.households.List(r.Context())
	if err != nil {
		h.logger.Error("list households", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list households")
		return
	}
	if households == nil {
		households = []model.Household{}
	}
	writeJSON(w, http.StatusOK, households)
}

func (h *AdminHandler) CreateHousehold(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.NotificationPreference != "" && !model.ValidPreference(req.NotificationPreference) {
		writeError(w, http.StatusBadRequest, "notification_preference must be email_only, sms_only or both")
		return
	}

	if email := strings.TrimSpace(req.Email); email != "" {
		existing, err := h.households.GetByEmail(r.Context(), email)
		if err != nil {
			h.logger.Error("household email lookup", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create household")
			return
		}
		if existing != nil {
			writeError(w, http.StatusConflict, "a household with this email already exists")
			return
		}
	}

	household, err := h.households.Create(r.Context(), store.HouseholdParams{
		Name:                   req.Name,
		Email:                  req.Email,
		Phone:                  req.Phone,
		ZipCode:                strings.TrimSpace(req.ZipCode),
		NotificationPreference: req.NotificationPreference,
		SMSOptIn:               req.SMSOptIn,
	})
	if err != nil {
		h.logger.Error("create household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create household")
		return
	}
	h.logger.Info("household created", "household_id", household.ID)
	writeJSON(w, http.StatusCreated, household)
}

type householdDetail struct {
	Household *model.Household       `json:"household"`
	Tasks     []model.TaskAssignment `json:"tasks"`
}

func (h *AdminHandler) GetHousehold(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	household, err := h.households.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get household", "household_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get household")
		return
	}
	if household == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}

	tasks, err := h.tasks.ListByHousehold(r.Context(), id)
	if err != nil {
		h.logger.Error("list household tasks", "household_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get household")
		return
	}
	if tasks == nil {
		tasks = []model.TaskAssignment{}
	}
	writeJSON(w, http.StatusOK, householdDetail{Household: household, Tasks: tasks})
}

type taskRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	DueDate        string `json:"due_date"`
	RecurrenceRule string `json:"recurrence_rule"`
}

type createTaskResponse struct {
	Task     *model.TaskAssignment `json:"task"`
	Reminder *model.Reminder       `json:"reminder"`
}

func (h *AdminHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	due, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.DueDate), h.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
		return
	}

	household, err := h.households.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get household", "household_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	if household == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}

	task, reminder, err := h.planner.CreateTask(r.Context(), schedule.TaskInput{
		HouseholdID:    id,
		Title:          req.Title,
		Description:    req.Description,
		DueDate:        due,
		RecurrenceRule: req.RecurrenceRule,
	})
	if errors.Is(err, schedule.ErrInvalidTask) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil && task == nil {
		h.logger.Error("create task", "household_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	if err != nil {
		h.logger.Error("queue reminder", "task_id", task.ID, "error", err)
	}

	h.logger.Info("task created", "task_id", task.ID, "household_id", id, "due", task.DueDate.In(h.location).Format(dateLayout))
	writeJSON(w, http.StatusCreated, createTaskResponse{Task: task, Reminder: reminder})
}

func (h *AdminHandler) ListReminders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ReminderFilter{Limit: defaultReminderLimit}

	switch status := model.ReminderStatus(q.Get("status")); status {
	case "":
	case model.ReminderPending, model.ReminderSent, model.ReminderFailed:
		filter.Status = status
	default:
		writeError(w, http.StatusBadRequest, "status must be pending, sent or failed")
		return
	}

	if v := q.Get("household_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid household_id")
			return
		}
		filter.HouseholdID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxReminderLimit {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	reminders, err := h.reminders.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	if reminders == nil {
		reminders = []model.Reminder{}
	}
	writeJSON(w, http.StatusOK, reminders)
}

type jobRunResponse struct {
	Status  jobs.Status `json:"status"`
	Skipped bool        `json:"skipped"`
}

// RunReminders processes the reminder queue now. The run continues if the
// client disconnects.
func (h *AdminHandler) RunReminders(w http.ResponseWriter, r *http.Request) {
	st := h.runner.TriggerReminderProcessing(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, jobRunResponse{Status: st, Skipped: st.Skipped()})
}

func (h *AdminHandler) RunOverdue(w http.ResponseWriter, r *http.Request) {
	st := h.runner.TriggerOverdueUpdate(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, jobRunResponse{Status: st, Skipped: st.Skipped()})
}

type jobsStatusResponse struct {
	Jobs    []jobs.Status                `json:"jobs"`
	NextRun *time.Time                   `json:"next_run,omitempty"`
	Queue   map[model.ReminderStatus]int `json:"queue"`
}

func (h *AdminHandler) JobsStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.reminders.CountByStatus(r.Context())
	if err != nil {
		h.logger.Error("count reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get job status")
		return
	}

	resp := jobsStatusResponse{Jobs: h.runner.Statuses(), Queue: counts}
	if next := h.runner.NextRun(); !next.IsZero() {
		resp.NextRun = &next
	}
	writeJSON(w, http.StatusOK, resp)
}
