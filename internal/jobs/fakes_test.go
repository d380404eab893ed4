package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/upkeepqr/maintcue/internal/email"
	"github.com/upkeepqr/maintcue/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type statusUpdate struct {
	id     int64
	status model.ReminderStatus
	reason string
}

type fakeQueue struct {
	mu        sync.Mutex
	reminders []model.Reminder
	listErr   error
	listedAt  time.Time
	updates   []statusUpdate
	onList    func()
}

func (q *fakeQueue) ListPending(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.onList != nil {
		q.onList()
	}
	q.listedAt = now
	if q.listErr != nil {
		return nil, q.listErr
	}
	var due []model.Reminder
	for _, r := range q.reminders {
		if r.Status == model.ReminderPending && !r.RunAt.After(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (q *fakeQueue) UpdateStatus(ctx context.Context, id int64, status model.ReminderStatus, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updates = append(q.updates, statusUpdate{id, status, reason})
	for i := range q.reminders {
		if q.reminders[i].ID == id {
			q.reminders[i].Status = status
			q.reminders[i].FailureReason = reason
		}
	}
	return nil
}

func (q *fakeQueue) update(id int64) (statusUpdate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, u := range q.updates {
		if u.id == id {
			return u, true
		}
	}
	return statusUpdate{}, false
}

type fakeHouseholds struct {
	households map[int64]*model.Household
	err        error
}

func (f *fakeHouseholds) GetByID(ctx context.Context, id int64) (*model.Household, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.households[id], nil
}

type fakeEmail struct {
	mu       sync.Mutex
	calls    []email.ReminderEmail
	err      error
	panicFor map[string]bool
	deadline []time.Duration
	afterSend func()
}

func (f *fakeEmail) SendReminder(ctx context.Context, r email.ReminderEmail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicFor[r.TaskTitle] {
		panic("email renderer exploded")
	}
	f.calls = append(f.calls, r)
	if dl, ok := ctx.Deadline(); ok {
		f.deadline = append(f.deadline, time.Until(dl))
	}
	if f.afterSend != nil {
		f.afterSend()
	}
	return f.err
}

type smsCall struct {
	phone    string
	taskName string
	dueDate  time.Time
}

type fakeSMS struct {
	mu    sync.Mutex
	calls []smsCall
	err   error
}

func (f *fakeSMS) SendReminder(ctx context.Context, phone, taskName string, dueDate time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, smsCall{phone, taskName, dueDate})
	return f.err
}
