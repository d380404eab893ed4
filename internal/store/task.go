package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/upkeepqr/maintcue/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.TaskAssignment, error) {
	var t model.TaskAssignment
	var completedAt sql.NullTime

	err := scanner.Scan(
		&t.ID, &t.HouseholdID, &t.Title, &t.Description, &t.DueDate,
		&t.Status, &t.RecurrenceRule, &completedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

const taskCols = `id, household_id, title, description, due_date, status, recurrence_rule, completed_at, created_at, updated_at`

func (s *TaskStore) Create(ctx context.Context, householdID int64, title, description string, dueDate time.Time, recurrenceRule string) (*model.TaskAssignment, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO task_assignments (household_id, title, description, due_date, recurrence_rule, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		householdID, title, description, dueDate.UTC(), recurrenceRule, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TaskStore) GetByID(ctx context.Context, id int64) (*model.TaskAssignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM task_assignments WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) ListByHousehold(ctx context.Context, householdID int64) ([]model.TaskAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM task_assignments WHERE household_id = ? ORDER BY due_date ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *TaskStore) ListByStatus(ctx context.Context, status model.TaskStatus) ([]model.TaskAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM task_assignments WHERE status = ? ORDER BY due_date ASC, id ASC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// MarkOverdue flips every pending task due strictly before the given instant
// to overdue in a single statement and returns the number of rows changed.
func (s *TaskStore) MarkOverdue(ctx context.Context, before, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE task_assignments SET status = 'overdue', updated_at = ?
		 WHERE status = 'pending' AND due_date < ?`,
		now.UTC(), before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Complete marks an open task completed. It returns nil when the task does
// not exist or is already closed.
func (s *TaskStore) Complete(ctx context.Context, id int64, at time.Time) (*model.TaskAssignment, error) {
	return s.close(ctx, id, model.TaskCompleted, at)
}

// Skip marks an open task skipped.
func (s *TaskStore) Skip(ctx context.Context, id int64, at time.Time) (*model.TaskAssignment, error) {
	return s.close(ctx, id, model.TaskSkipped, at)
}

func (s *TaskStore) close(ctx context.Context, id int64, status model.TaskStatus, at time.Time) (*model.TaskAssignment, error) {
	var completedAt sql.NullTime
	if status == model.TaskCompleted {
		completedAt = sql.NullTime{Time: at.UTC(), Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE task_assignments SET status = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ('pending', 'overdue')`,
		status, completedAt, at.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("%s task: %w", status, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, id)
}

func scanTasks(rows *sql.Rows) ([]model.TaskAssignment, error) {
	var tasks []model.TaskAssignment
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
