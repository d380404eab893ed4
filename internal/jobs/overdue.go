package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// OverdueUpdater flips pending tasks whose due date is before local midnight
// to overdue.
type OverdueUpdater struct {
	tasks    TaskUpdater
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

func NewOverdueUpdater(tasks TaskUpdater, loc *time.Location, logger *slog.Logger) *OverdueUpdater {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OverdueUpdater{
		tasks:    tasks,
		location: loc,
		now:      time.Now,
		logger:   logger,
	}
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Run performs the bulk update and returns the number of tasks marked.
func (u *OverdueUpdater) Run(ctx context.Context) (int64, error) {
	now := u.now()
	cutoff := StartOfDay(now, u.location)

	n, err := u.tasks.MarkOverdue(ctx, cutoff.UTC(), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("mark overdue tasks: %w", err)
	}
	u.logger.Info("overdue tasks marked", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	return n, nil
}
