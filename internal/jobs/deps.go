package jobs

import (
	"context"
	"time"

	"github.com/upkeepqr/maintcue/internal/email"
	"github.com/upkeepqr/maintcue/internal/model"
)

// ReminderQueue is the slice of the reminder store the dispatcher needs.
type ReminderQueue interface {
	ListPending(ctx context.Context, now time.Time) ([]model.Reminder, error)
	UpdateStatus(ctx context.Context, id int64, status model.ReminderStatus, reason string) error
}

type HouseholdLookup interface {
	GetByID(ctx context.Context, id int64) (*model.Household, error)
}

// TaskUpdater moves every pending task due before the cutoff to overdue in
// one statement and reports how many changed.
type TaskUpdater interface {
	MarkOverdue(ctx context.Context, before, now time.Time) (int64, error)
}

type EmailSender interface {
	SendReminder(ctx context.Context, r email.ReminderEmail) error
}

type SMSSender interface {
	SendReminder(ctx context.Context, phone, taskName string, dueDate time.Time) error
}
