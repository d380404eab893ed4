package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/upkeepqr/maintcue/internal/model"
	"github.com/upkeepqr/maintcue/internal/recurrence"
	"github.com/upkeepqr/maintcue/internal/store"
)

// ErrInvalidTask wraps validation failures in CreateTask.
var ErrInvalidTask = errors.New("invalid task")

type TaskCreator interface {
	Create(ctx context.Context, householdID int64, title, description string, dueDate time.Time, recurrenceRule string) (*model.TaskAssignment, error)
}

type ReminderEnqueuer interface {
	Enqueue(ctx context.Context, nr store.NewReminder) (*model.Reminder, error)
}

// Planner creates task assignments and queues the reminder for each one.
type Planner struct {
	tasks     TaskCreator
	reminders ReminderEnqueuer
	leadDays  int
	location  *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

// NewPlanner returns a planner that schedules each reminder leadDays before
// the task is due, at local midnight in loc.
func NewPlanner(tasks TaskCreator, reminders ReminderEnqueuer, leadDays int, loc *time.Location, logger *slog.Logger) *Planner {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		tasks:     tasks,
		reminders: reminders,
		leadDays:  leadDays,
		location:  loc,
		logger:    logger,
		now:       time.Now,
	}
}

// TaskInput is a new task assignment as submitted by an admin.
type TaskInput struct {
	HouseholdID    int64
	Title          string
	Description    string
	DueDate        time.Time
	RecurrenceRule string
}

// CreateTask validates and stores a task and queues its reminder.
func (p *Planner) CreateTask(ctx context.Context, in TaskInput) (*model.TaskAssignment, *model.Reminder, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, nil, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if in.DueDate.IsZero() {
		return nil, nil, fmt.Errorf("%w: due date is required", ErrInvalidTask)
	}
	rule := strings.TrimSpace(in.RecurrenceRule)
	if rule != "" {
		r, err := recurrence.Parse(rule)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: recurrence rule: %v", ErrInvalidTask, err)
		}
		rule = r.String()
	}

	due := p.dayStart(in.DueDate)
	task, err := p.tasks.Create(ctx, in.HouseholdID, title, strings.TrimSpace(in.Description), due, rule)
	if err != nil {
		return nil, nil, fmt.Errorf("create task: %w", err)
	}
	reminder, err := p.QueueTask(ctx, task)
	if err != nil {
		return task, nil, err
	}
	return task, reminder, nil
}

// QueueTask enqueues the reminder for a task. The reminder runs leadDays
// before the due date, or now if that moment has already passed.
func (p *Planner) QueueTask(ctx context.Context, task *model.TaskAssignment) (*model.Reminder, error) {
	runAt := p.dayStart(task.DueDate).AddDate(0, 0, -p.leadDays)
	if now := p.now(); runAt.Before(now) {
		runAt = now
	}

	taskID := task.ID
	reminder, err := p.reminders.Enqueue(ctx, store.NewReminder{
		HouseholdID:     task.HouseholdID,
		TaskID:          &taskID,
		TaskName:        task.Title,
		TaskDescription: task.Description,
		DueDate:         task.DueDate,
		RunAt:           runAt,
	})
	if err != nil {
		return nil, fmt.Errorf("queue reminder for task %d: %w", task.ID, err)
	}
	p.logger.Debug("reminder queued", "task_id", task.ID, "reminder_id", reminder.ID, "run_at", runAt.UTC().Format(time.RFC3339))
	return reminder, nil
}

// Advance creates the next occurrence of a recurring task and queues its
// reminder. It returns nil for one-off tasks and for rules that have ended.
func (p *Planner) Advance(ctx context.Context, task *model.TaskAssignment) (*model.TaskAssignment, error) {
	if task.RecurrenceRule == "" {
		return nil, nil
	}
	rule, err := recurrence.Parse(task.RecurrenceRule)
	if err != nil {
		return nil, fmt.Errorf("parse recurrence for task %d: %w", task.ID, err)
	}

	next := rule.Next(p.dayStart(task.DueDate))
	if next.IsZero() {
		p.logger.Info("recurring task ended", "task_id", task.ID, "rule", task.RecurrenceRule)
		return nil, nil
	}

	created, err := p.tasks.Create(ctx, task.HouseholdID, task.Title, task.Description, next, task.RecurrenceRule)
	if err != nil {
		return nil, fmt.Errorf("create next occurrence of task %d: %w", task.ID, err)
	}
	if _, err := p.QueueTask(ctx, created); err != nil {
		return created, err
	}
	p.logger.Info("next occurrence scheduled", "task_id", task.ID, "next_task_id", created.ID, "due", next.Format("2006-01-02"))
	return created, nil
}

func (p *Planner) dayStart(t time.Time) time.Time {
	t = t.In(p.location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, p.location)
}
