package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/upkeepqr/maintcue/internal/email"
	"github.com/upkeepqr/maintcue/internal/ics"
	"github.com/upkeepqr/maintcue/internal/metrics"
	"github.com/upkeepqr/maintcue/internal/model"
	"github.com/upkeepqr/maintcue/internal/store"
)

const DefaultSendTimeout = 20 * time.Second

// recordTimeout bounds the status write after a delivery attempt. The write
// does not inherit cancellation from the run, so a delivered reminder is
// always marked sent even when shutdown interrupts the batch.
const recordTimeout = 5 * time.Second

// DispatcherConfig carries the optional dispatcher settings.
type DispatcherConfig struct {
	// SendTimeout bounds each individual email or SMS call.
	SendTimeout time.Duration
	// Location is the timezone due dates are presented in.
	Location *time.Location
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Dispatcher delivers due reminders one at a time and records a final
// status for each.
type Dispatcher struct {
	queue       ReminderQueue
	households  HouseholdLookup
	email       EmailSender
	sms         SMSSender
	sendTimeout time.Duration
	location    *time.Location
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func NewDispatcher(queue ReminderQueue, households HouseholdLookup, emailSender EmailSender, smsSender SMSSender, cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		queue:       queue,
		households:  households,
		email:       emailSender,
		sms:         smsSender,
		sendTimeout: cfg.SendTimeout,
		location:    cfg.Location,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         time.Now,
	}
	if d.sendTimeout <= 0 {
		d.sendTimeout = DefaultSendTimeout
	}
	if d.location == nil {
		d.location = time.UTC
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Result is the aggregate outcome of one dispatch run.
type Result struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// Run processes every pending reminder due at the moment the run starts.
// Individual failures are recorded on the reminder and never stop the batch.
// An error is returned only if the backlog cannot be read or ctx ends.
func (d *Dispatcher) Run(ctx context.Context) (Result, error) {
	var res Result
	now := d.now()

	reminders, err := d.queue.ListPending(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list pending reminders: %w", err)
	}
	d.logger.Info("processing reminders", "due", len(reminders), "as_of", now.UTC().Format(time.RFC3339))

	for i := range reminders {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("reminder batch interrupted", "processed", res.Processed, "remaining", len(reminders)-i)
			return res, err
		}

		r := &reminders[i]
		derr := d.process(ctx, r)
		res.Processed++

		status, reason := model.ReminderSent, ""
		if derr != nil {
			status, reason = model.ReminderFailed, derr.Reason
			res.Failed++
			d.logger.Warn("reminder failed",
				"reminder_id", r.ID, "household_id", r.HouseholdID, "reason", derr.Reason)
		} else {
			res.Sent++
			d.logger.Debug("reminder sent", "reminder_id", r.ID, "household_id", r.HouseholdID)
		}
		d.metrics.ReminderResolved(string(status))

		d.record(ctx, r.ID, status, reason)
	}

	d.logger.Info("reminder batch complete", "processed", res.Processed, "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

func (d *Dispatcher) record(ctx context.Context, id int64, status model.ReminderStatus, reason string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := d.queue.UpdateStatus(rctx, id, status, reason); err != nil {
		if errors.Is(err, store.ErrReminderResolved) {
			d.logger.Warn("reminder resolved elsewhere, outcome not recorded", "reminder_id", id)
		} else {
			d.logger.Error("record reminder outcome", "reminder_id", id, "status", status, "error", err)
		}
	}
}

// process delivers one reminder. A panic anywhere in delivery fails only
// this reminder.
func (d *Dispatcher) process(ctx context.Context, r *model.Reminder) (derr *DeliveryError) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("reminder delivery panicked", "reminder_id", r.ID, "panic", p, "stack", string(debug.Stack()))
			derr = &DeliveryError{Reason: fmt.Sprintf("internal error: %v", p)}
		}
	}()

	h, err := d.households.GetByID(ctx, r.HouseholdID)
	if err != nil {
		return &DeliveryError{Reason: "household lookup failed: " + err.Error(), Err: err}
	}
	if h == nil {
		return &DeliveryError{Reason: ReasonHouseholdNotFound}
	}

	sendEmail, sendSMS := SelectChannels(h)
	if !sendEmail && !sendSMS {
		return &DeliveryError{Reason: ReasonNoChannels}
	}

	var failures []channelFailure
	delivered := false

	if sendEmail {
		err := d.sendEmail(ctx, h, r)
		d.metrics.ChannelAttempt(ChannelEmail, err == nil)
		if err != nil {
			failures = append(failures, channelFailure{ChannelEmail, err})
		} else {
			delivered = true
		}
	}
	if sendSMS {
		err := d.sendSMS(ctx, h, r)
		d.metrics.ChannelAttempt(ChannelSMS, err == nil)
		if err != nil {
			failures = append(failures, channelFailure{ChannelSMS, err})
		} else {
			delivered = true
		}
	}

	if delivered {
		for _, f := range failures {
			d.logger.Warn("reminder channel failed, delivered on another channel",
				"reminder_id", r.ID, "channel", f.channel, "error", f.err)
		}
		return nil
	}
	return failedChannels(failures)
}

func (d *Dispatcher) sendEmail(ctx context.Context, h *model.Household, r *model.Reminder) error {
	due := r.DueDate.In(d.location)

	invite, err := ics.Build(ics.Invite{
		UID:         fmt.Sprintf("reminder-%d@maintcue.com", r.ID),
		Summary:     r.TaskName,
		Description: r.TaskDescription,
		Due:         due,
		Location:    d.location,
	})
	if err != nil {
		return fmt.Errorf("build calendar invite: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	return d.email.SendReminder(ctx, email.ReminderEmail{
		To:          h.Email,
		FirstName:   h.FirstName(),
		TaskTitle:   r.TaskName,
		Description: r.TaskDescription,
		DueDate:     due,
		ICS:         invite,
	})
}

func (d *Dispatcher) sendSMS(ctx context.Context, h *model.Household, r *model.Reminder) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.sms.SendReminder(ctx, h.Phone, r.TaskName, r.DueDate.In(d.location))
}
