package model

import "time"

type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
)

// Reminder is one entry of the outbound reminder queue.
type Reminder struct {
	ID              int64          `json:"id"`
	HouseholdID     int64          `json:"household_id"`
	TaskID          *int64         `json:"task_id"`
	TaskName        string         `json:"task_name"`
	TaskDescription string         `json:"task_description"`
	DueDate         time.Time      `json:"due_date"`
	RunAt           time.Time      `json:"run_at"`
	Status          ReminderStatus `json:"status"`
	FailureReason   string         `json:"failure_reason,omitempty"`
	SentAt          *time.Time     `json:"sent_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
