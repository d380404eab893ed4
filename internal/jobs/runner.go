package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/upkeepqr/maintcue/internal/metrics"
)

const DefaultSchedule = "0 9 * * *"

// Outcomes recorded on the job run counter.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

// RunnerConfig carries the optional runner settings.
type RunnerConfig struct {
	// Schedule is a five-field cron expression. Defaults to 09:00 daily.
	Schedule string
	Location *time.Location
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	OnStatus StatusCallback
}

// Runner owns the daily schedule and the per-job guards. A job never runs
// twice at once; an invocation that finds its job in flight is skipped.
type Runner struct {
	overdue    *OverdueUpdater
	dispatcher *Dispatcher
	schedule   string
	location   *time.Location
	metrics    *metrics.Metrics
	logger     *slog.Logger
	onStatus   StatusCallback

	overdueRunning   atomic.Bool
	remindersRunning atomic.Bool

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	sched  cron.Schedule
	last   map[string]Status
}

func NewRunner(overdue *OverdueUpdater, dispatcher *Dispatcher, cfg RunnerConfig) *Runner {
	r := &Runner{
		overdue:    overdue,
		dispatcher: dispatcher,
		schedule:   cfg.Schedule,
		location:   cfg.Location,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		onStatus:   cfg.OnStatus,
		last:       make(map[string]Status),
	}
	if r.schedule == "" {
		r.schedule = DefaultSchedule
	}
	if r.location == nil {
		r.location = time.UTC
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Start registers the daily run. Calling it again while started does nothing.
// Scheduled runs use a context derived from ctx that Stop cancels.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		r.logger.Debug("job scheduler already started")
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(r.location))

	sched, err := parser.Parse(r.schedule)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", r.schedule, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.Schedule(sched, cron.FuncJob(func() { r.runDaily(runCtx) }))
	c.Start()

	r.cron = c
	r.cancel = cancel
	r.sched = sched
	r.logger.Info("job scheduler started",
		"schedule", r.schedule, "timezone", r.location.String(),
		"next_run", sched.Next(time.Now().In(r.location)).Format(time.RFC3339))
	return nil
}

// Stop halts the schedule and waits for an in-flight scheduled run to
// finish. If ctx ends first the run's context is cancelled.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()

	if c == nil {
		return nil
	}
	defer cancel()

	select {
	case <-c.Stop().Done():
		r.logger.Info("job scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop job scheduler: %w", ctx.Err())
	}
}

// NextRun returns the next scheduled fire time, or the zero time when the
// scheduler is not started.
func (r *Runner) NextRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return time.Time{}
	}
	return r.sched.Next(time.Now().In(r.location))
}

// TriggerReminderProcessing runs the reminder dispatcher now, unless it is
// already running.
func (r *Runner) TriggerReminderProcessing(ctx context.Context) Status {
	r.logger.Info("manual reminder processing requested")
	return r.runReminders(ctx, TriggerManual)
}

// TriggerOverdueUpdate runs the overdue updater now, unless it is already
// running.
func (r *Runner) TriggerOverdueUpdate(ctx context.Context) Status {
	r.logger.Info("manual overdue update requested")
	return r.runOverdue(ctx, TriggerManual)
}

// Statuses returns the last reported status of each job that has run.
func (r *Runner) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.last))
	for _, st := range r.last {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// runDaily is the scheduled callback. The overdue step always precedes the
// reminder step, and a failure in one does not prevent the other.
func (r *Runner) runDaily(ctx context.Context) {
	r.logger.Info("daily jobs starting")
	r.runOverdue(ctx, TriggerSchedule)
	r.runReminders(ctx, TriggerSchedule)
}

func (r *Runner) runOverdue(ctx context.Context, trigger string) Status {
	return r.run(ctx, &r.overdueRunning, JobOverdue, trigger, func(ctx context.Context) (Status, error) {
		n, err := r.overdue.Run(ctx)
		r.metrics.OverdueMarked(n)
		return Status{Marked: n}, err
	})
}

func (r *Runner) runReminders(ctx context.Context, trigger string) Status {
	return r.run(ctx, &r.remindersRunning, JobReminders, trigger, func(ctx context.Context) (Status, error) {
		res, err := r.dispatcher.Run(ctx)
		return Status{Processed: res.Processed, Sent: res.Sent, Failed: res.Failed}, err
	})
}

// run executes fn under guard. Errors and panics from fn are logged and
// reported in the returned status; they never escape.
func (r *Runner) run(ctx context.Context, guard *atomic.Bool, job, trigger string, fn func(context.Context) (Status, error)) Status {
	logger := r.logger.With("job", job, "trigger", trigger)

	if !guard.CompareAndSwap(false, true) {
		logger.Warn("job already running, skipped")
		r.metrics.JobRun(job, trigger, OutcomeSkipped)
		now := time.Now()
		st := Status{Job: job, Trigger: trigger, State: StateSkipped, StartedAt: now, FinishedAt: &now}
		r.notify(st)
		return st
	}
	defer guard.Store(false)

	start := time.Now()
	r.report(Status{Job: job, Trigger: trigger, State: StateRunning, StartedAt: start})
	logger.Info("job started")

	st, err := r.call(ctx, fn)
	finished := time.Now()
	elapsed := finished.Sub(start)

	st.Job, st.Trigger = job, trigger
	st.StartedAt, st.FinishedAt = start, &finished
	r.metrics.JobDuration(job, elapsed)

	if err != nil {
		st.State = StateError
		st.Error = err.Error()
		r.metrics.JobRun(job, trigger, OutcomeError)
		logger.Error("job failed", "error", err, "duration", elapsed)
	} else {
		st.State = StateIdle
		r.metrics.JobRun(job, trigger, OutcomeCompleted)
		logger.Info("job completed", "duration", elapsed,
			"processed", st.Processed, "sent", st.Sent, "failed", st.Failed, "marked", st.Marked)
	}
	r.report(st)
	return st
}

func (r *Runner) call(ctx context.Context, fn func(context.Context) (Status, error)) (st Status, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("job panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// report records st as the job's latest status and notifies the callback.
func (r *Runner) report(st Status) {
	r.mu.Lock()
	r.last[st.Job] = st
	r.mu.Unlock()
	r.notify(st)
}

func (r *Runner) notify(st Status) {
	if r.onStatus != nil {
		r.onStatus(st)
	}
}
