package jobs

import "time"

const (
	JobReminders = "reminders"
	JobOverdue   = "overdue"
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// State is the lifecycle state reported for a job.
type State string

const (
	StateRunning State = "running"
	StateIdle    State = "idle"
	StateSkipped State = "skipped"
	StateError   State = "error"
)

// Status describes a job run. Running statuses are reported when a run
// starts, and idle, error or skipped statuses when it ends.
type Status struct {
	Job        string     `json:"job"`
	Trigger    string     `json:"trigger"`
	State      State      `json:"state"`
	Processed  int        `json:"processed"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	Marked     int64      `json:"marked"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Skipped reports whether the run did nothing because another run of the
// same job held the guard.
func (s Status) Skipped() bool {
	return s.State == StateSkipped
}

// StatusCallback is called whenever a job changes state.
type StatusCallback func(Status)
