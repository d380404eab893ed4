package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upkeepqr/maintcue/internal/model"
)

// ErrReminderResolved is returned when a status update targets a reminder
// that is no longer pending.
var ErrReminderResolved = errors.New("reminder already resolved")

type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

func scanReminder(scanner interface{ Scan(...any) error }) (*model.Reminder, error) {
	var r model.Reminder
	var taskID sql.NullInt64
	var reason sql.NullString
	var sentAt sql.NullTime

	err := scanner.Scan(
		&r.ID, &r.HouseholdID, &taskID, &r.TaskName, &r.TaskDescription,
		&r.DueDate, &r.RunAt, &r.Status, &reason, &sentAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if taskID.Valid {
		r.TaskID = &taskID.Int64
	}
	r.FailureReason = reason.String
	if sentAt.Valid {
		r.SentAt = &sentAt.Time
	}
	return &r, nil
}

const reminderCols = `id, household_id, task_id, task_name, task_description, due_date, run_at, status, failure_reason, sent_at, created_at, updated_at`

// NewReminder describes a reminder to enqueue. RunAt defaults to DueDate.
type NewReminder struct {
	HouseholdID     int64
	TaskID          *int64
	TaskName        string
	TaskDescription string
	DueDate         time.Time
	RunAt           time.Time
}

func (s *ReminderStore) Enqueue(ctx context.Context, nr NewReminder) (*model.Reminder, error) {
	if nr.RunAt.IsZero() {
		nr.RunAt = nr.DueDate
	}
	var taskID sql.NullInt64
	if nr.TaskID != nil {
		taskID = sql.NullInt64{Int64: *nr.TaskID, Valid: true}
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_queue (household_id, task_id, task_name, task_description, due_date, run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nr.HouseholdID, taskID, nr.TaskName, nr.TaskDescription, nr.DueDate.UTC(), nr.RunAt.UTC(), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ReminderStore) GetByID(ctx context.Context, id int64) (*model.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminder_queue WHERE id = ?`, id)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// ListPending returns pending reminders whose run time is at or before now,
// oldest first. The rows are fully read before returning so callers may issue
// further queries while iterating the result.
func (s *ReminderStore) ListPending(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminder_queue
		 WHERE status = 'pending' AND run_at <= ?
		 ORDER BY run_at ASC, id ASC`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// ReminderFilter narrows List. Zero values match everything.
type ReminderFilter struct {
	Status      model.ReminderStatus
	HouseholdID int64
	Limit       int
}

func (s *ReminderStore) List(ctx context.Context, f ReminderFilter) ([]model.Reminder, error) {
	query := `SELECT ` + reminderCols + ` FROM reminder_queue WHERE 1 = 1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.HouseholdID != 0 {
		query += ` AND household_id = ?`
		args = append(args, f.HouseholdID)
	}
	query += ` ORDER BY run_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// UpdateStatus resolves a pending reminder as sent or failed. Resolved
// reminders are never rewritten; ErrReminderResolved is returned instead.
func (s *ReminderStore) UpdateStatus(ctx context.Context, id int64, status model.ReminderStatus, reason string) error {
	if status != model.ReminderSent && status != model.ReminderFailed {
		return fmt.Errorf("update reminder status: invalid status %q", status)
	}

	now := time.Now().UTC()
	var sentAt sql.NullTime
	var failure sql.NullString
	if status == model.ReminderSent {
		sentAt = sql.NullTime{Time: now, Valid: true}
	} else {
		failure = sql.NullString{String: reason, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE reminder_queue SET status = ?, failure_reason = ?, sent_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		status, failure, sentAt, now, id,
	)
	if err != nil {
		return fmt.Errorf("update reminder status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrReminderResolved
	}
	return nil
}

// CountByStatus returns the number of reminders in each status.
func (s *ReminderStore) CountByStatus(ctx context.Context) (map[model.ReminderStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reminder_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count reminders: %w", err)
	}
	defer rows.Close()

	counts := map[model.ReminderStatus]int{
		model.ReminderPending: 0,
		model.ReminderSent:    0,
		model.ReminderFailed:  0,
	}
	for rows.Next() {
		var status model.ReminderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan reminder count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanReminders(rows *sql.Rows) ([]model.Reminder, error) {
	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}
