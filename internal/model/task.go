package model

import "time"

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskOverdue   TaskStatus = "overdue"
	TaskCompleted TaskStatus = "completed"
	TaskSkipped   TaskStatus = "skipped"
)

type TaskAssignment struct {
	ID             int64      `json:"id"`
	HouseholdID    int64      `json:"household_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	DueDate        time.Time  `json:"due_date"`
	Status         TaskStatus `json:"status"`
	RecurrenceRule string     `json:"recurrence_rule"`
	CompletedAt    *time.Time `json:"completed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Open reports whether the task can still be completed or skipped.
func (t TaskAssignment) Open() bool {
	return t.Status == TaskPending || t.Status == TaskOverdue
}
