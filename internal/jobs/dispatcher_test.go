package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/upkeepqr/maintcue/internal/model"
)

var testNow = time.Date(2026, 10, 17, 13, 0, 0, 0, time.UTC)

type dispatchFixture struct {
	queue      *fakeQueue
	households *fakeHouseholds
	email      *fakeEmail
	sms        *fakeSMS
	dispatcher *Dispatcher
}

func newDispatchFixture(households ...*model.Household) *dispatchFixture {
	f := &dispatchFixture{
		queue:      &fakeQueue{},
		households: &fakeHouseholds{households: make(map[int64]*model.Household)},
		email:      &fakeEmail{},
		sms:        &fakeSMS{},
	}
	for _, h := range households {
		f.households.households[h.ID] = h
	}
	f.dispatcher = NewDispatcher(f.queue, f.households, f.email, f.sms, DispatcherConfig{
		SendTimeout: 5 * time.Second,
		Logger:      discardLogger(),
	})
	f.dispatcher.now = func() time.Time { return testNow }
	return f
}

func (f *dispatchFixture) addReminder(id, householdID int64, taskName string) {
	f.queue.reminders = append(f.queue.reminders, model.Reminder{
		ID:          id,
		HouseholdID: householdID,
		TaskName:    taskName,
		DueDate:     testNow,
		RunAt:       testNow,
		Status:      model.ReminderPending,
	})
}

func (f *dispatchFixture) run(t *testing.T) Result {
	t.Helper()
	res, err := f.dispatcher.Run(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	return res
}

func (f *dispatchFixture) wantStatus(t *testing.T, id int64, status model.ReminderStatus) statusUpdate {
	t.Helper()
	u, ok := f.queue.update(id)
	if !ok {
		t.Fatalf("reminder %d: no status recorded", id)
	}
	if u.status != status {
		t.Errorf("reminder %d status = %q, want %q (reason %q)", id, u.status, status, u.reason)
	}
	return u
}

func TestDispatchEmailOnly(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, Name: "Ada Lovelace", NotificationPreference: "email_only", Email: "a@example.com"})
	f.addReminder(10, 1, "Replace HVAC filter")

	res := f.run(t)

	if len(f.email.calls) != 1 {
		t.Fatalf("email calls = %d, want 1", len(f.email.calls))
	}
	call := f.email.calls[0]
	if call.TaskTitle != "Replace HVAC filter" {
		t.Errorf("taskTitle = %q, want %q", call.TaskTitle, "Replace HVAC filter")
	}
	if call.To != "a@example.com" || call.FirstName != "Ada" {
		t.Errorf("recipient = %q/%q", call.To, call.FirstName)
	}
	if len(f.sms.calls) != 0 {
		t.Errorf("sms calls = %d, want 0", len(f.sms.calls))
	}
	u := f.wantStatus(t, 10, model.ReminderSent)
	if u.reason != "" {
		t.Errorf("reason = %q, want empty", u.reason)
	}
	if res != (Result{Processed: 1, Sent: 1}) {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchAttachesCalendarInvite(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "email_only", Email: "a@example.com"})
	f.queue.reminders = []model.Reminder{{
		ID: 10, HouseholdID: 1, TaskName: "Replace HVAC filter", TaskDescription: "Use MERV 11",
		DueDate: testNow, RunAt: testNow, Status: model.ReminderPending,
	}}

	f.run(t)

	if len(f.email.calls) != 1 {
		t.Fatalf("email calls = %d, want 1", len(f.email.calls))
	}
	invite := string(f.email.calls[0].ICS)
	for _, want := range []string{"SUMMARY:Replace HVAC filter", "DESCRIPTION:Use MERV 11", "UID:reminder-10@maintcue.com"} {
		if !strings.Contains(invite, want) {
			t.Errorf("invite missing %q", want)
		}
	}
}

func TestDispatchBothWithoutEmail(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "both", Phone: "+15551234567", SMSOptIn: true})
	f.addReminder(10, 1, "Clean gutters")

	f.run(t)

	if len(f.email.calls) != 0 {
		t.Errorf("email calls = %d, want 0", len(f.email.calls))
	}
	if len(f.sms.calls) != 1 {
		t.Fatalf("sms calls = %d, want 1", len(f.sms.calls))
	}
	if f.sms.calls[0].phone != "+15551234567" || f.sms.calls[0].taskName != "Clean gutters" {
		t.Errorf("sms call = %+v", f.sms.calls[0])
	}
	f.wantStatus(t, 10, model.ReminderSent)
}

func TestDispatchHouseholdNotFoundContinues(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 2, NotificationPreference: "email_only", Email: "b@example.com"})
	f.addReminder(10, 99, "Orphaned task")
	f.addReminder(11, 2, "Test smoke detectors")

	res := f.run(t)

	u := f.wantStatus(t, 10, model.ReminderFailed)
	if u.reason != ReasonHouseholdNotFound {
		t.Errorf("reason = %q, want %q", u.reason, ReasonHouseholdNotFound)
	}
	f.wantStatus(t, 11, model.ReminderSent)

	if len(f.email.calls) != 1 || f.email.calls[0].TaskTitle != "Test smoke detectors" {
		t.Errorf("email calls = %+v, want only the second reminder", f.email.calls)
	}
	if len(f.sms.calls) != 0 {
		t.Errorf("sms calls = %d, want 0", len(f.sms.calls))
	}
	if res != (Result{Processed: 2, Sent: 1, Failed: 1}) {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchSMSOnlyWithoutOptIn(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "sms_only", Email: "a@example.com", Phone: "+15551234567", SMSOptIn: false})
	f.addReminder(10, 1, "Drain sprinklers")

	f.run(t)

	u := f.wantStatus(t, 10, model.ReminderFailed)
	if u.reason != ReasonNoChannels {
		t.Errorf("reason = %q, want %q", u.reason, ReasonNoChannels)
	}
	if len(f.email.calls)+len(f.sms.calls) != 0 {
		t.Errorf("expected no sends, got %d email and %d sms", len(f.email.calls), len(f.sms.calls))
	}
}

func TestDispatchBothChannelsFail(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "both", Email: "a@example.com", Phone: "+15551234567", SMSOptIn: true})
	f.email.err = errors.New("postmark API error: status 500")
	f.sms.err = errors.New("twilio API error: status 400")
	f.addReminder(10, 1, "Seal deck")

	res := f.run(t)

	if len(f.email.calls) != 1 || len(f.sms.calls) != 1 {
		t.Errorf("calls = %d email, %d sms, want 1 each", len(f.email.calls), len(f.sms.calls))
	}
	u := f.wantStatus(t, 10, model.ReminderFailed)
	if !strings.Contains(u.reason, "email failed: postmark API error") || !strings.Contains(u.reason, "sms failed: twilio API error") {
		t.Errorf("reason = %q, want both channel failures", u.reason)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}
}

func TestDispatchOneChannelSucceeds(t *testing.T) {
	tests := []struct {
		name     string
		emailErr error
		smsErr   error
	}{
		{"email fails", errors.New("smtp down"), nil},
		{"sms fails", nil, errors.New("carrier rejected")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "both", Email: "a@example.com", Phone: "+15551234567", SMSOptIn: true})
			f.email.err = tt.emailErr
			f.sms.err = tt.smsErr
			f.addReminder(10, 1, "Flush water heater")

			f.run(t)

			if len(f.email.calls) != 1 || len(f.sms.calls) != 1 {
				t.Errorf("calls = %d email, %d sms, want both attempted", len(f.email.calls), len(f.sms.calls))
			}
			f.wantStatus(t, 10, model.ReminderSent)
		})
	}
}

func TestDispatchEmailFailureWithoutSMSFails(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "email_only", Email: "a@example.com"})
	f.email.err = errors.New("postmark API error: status 422")
	f.addReminder(10, 1, "Clean dryer vent")

	f.run(t)

	u := f.wantStatus(t, 10, model.ReminderFailed)
	if u.reason != "email failed: postmark API error: status 422" {
		t.Errorf("reason = %q", u.reason)
	}
}

func TestDispatchSnapshotsNow(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "email_only", Email: "a@example.com"})
	f.addReminder(10, 1, "Due now")
	f.queue.reminders = append(f.queue.reminders, model.Reminder{
		ID: 11, HouseholdID: 1, TaskName: "Due later", DueDate: testNow.Add(time.Hour),
		RunAt: testNow.Add(time.Minute), Status: model.ReminderPending,
	})

	res := f.run(t)

	if !f.queue.listedAt.Equal(testNow) {
		t.Errorf("listed at %v, want %v", f.queue.listedAt, testNow)
	}
	if res.Processed != 1 {
		t.Errorf("processed = %d, want 1", res.Processed)
	}
	if _, ok := f.queue.update(11); ok {
		t.Error("reminder due after the snapshot should not be touched")
	}
}

func TestDispatchAppliesSendTimeout(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "email_only", Email: "a@example.com"})
	f.addReminder(10, 1, "Inspect roof")

	f.run(t)

	if len(f.email.deadline) != 1 {
		t.Fatal("expected email call to carry a deadline")
	}
	if d := f.email.deadline[0]; d <= 0 || d > 5*time.Second {
		t.Errorf("deadline in %s, want within 5s", d)
	}
}

func TestDispatchPanicIsolated(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "email_only", Email: "a@example.com"})
	f.email.panicFor = map[string]bool{"Explodes": true}
	f.addReminder(10, 1, "Explodes")
	f.addReminder(11, 1, "Fine")

	res := f.run(t)

	u := f.wantStatus(t, 10, model.ReminderFailed)
	if !strings.HasPrefix(u.reason, "internal error") {
		t.Errorf("reason = %q", u.reason)
	}
	f.wantStatus(t, 11, model.ReminderSent)
	if res != (Result{Processed: 2, Sent: 1, Failed: 1}) {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchEmptyTaskNameFailsEmailOnly(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "both", Email: "a@example.com", Phone: "+15551234567", SMSOptIn: true})
	f.addReminder(10, 1, "")

	f.run(t)

	if len(f.email.calls) != 0 {
		t.Errorf("email calls = %d, want 0 when the invite cannot be built", len(f.email.calls))
	}
	if len(f.sms.calls) != 1 {
		t.Errorf("sms calls = %d, want 1", len(f.sms.calls))
	}
	f.wantStatus(t, 10, model.ReminderSent)
}

func TestDispatchHouseholdLookupError(t *testing.T) {
	f := newDispatchFixture()
	f.households.err = errors.New("database is locked")
	f.addReminder(10, 1, "Anything")

	f.run(t)

	u := f.wantStatus(t, 10, model.ReminderFailed)
	if !strings.Contains(u.reason, "database is locked") {
		t.Errorf("reason = %q", u.reason)
	}
}

func TestDispatchListError(t *testing.T) {
	f := newDispatchFixture()
	f.queue.listErr = errors.New("no such table: reminder_queue")

	if _, err := f.dispatcher.Run(context.Background()); err == nil {
		t.Fatal("expected error when the backlog cannot be read")
	}
}

func TestDispatchStopsOnCancel(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "email_only", Email: "a@example.com"})
	f.addReminder(10, 1, "Never sent")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.dispatcher.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, ok := f.queue.update(10); ok {
		t.Error("cancelled run should leave reminder pending")
	}
}

func TestDispatchRecordsDeliveredAfterCancel(t *testing.T) {
	f := newDispatchFixture(&model.Household{ID: 1, NotificationPreference: "email_only", Email: "a@example.com"})
	f.addReminder(10, 1, "Clean gutters")
	f.addReminder(11, 1, "Test smoke alarms")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.email.afterSend = cancel

	res, err := f.dispatcher.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Sent != 1 || res.Processed != 1 {
		t.Errorf("result = %+v, want one sent", res)
	}
	if len(f.email.calls) != 1 {
		t.Errorf("email calls = %d, want 1", len(f.email.calls))
	}
	f.wantStatus(t, 10, model.ReminderSent)
	if _, ok := f.queue.update(11); ok {
		t.Error("reminder after cancellation should stay pending")
	}
}

func TestDeliveryErrorUnwrap(t *testing.T) {
	emailErr := errors.New("smtp down")
	smsErr := errors.New("carrier rejected")
	de := failedChannels([]channelFailure{{ChannelEmail, emailErr}, {ChannelSMS, smsErr}})

	if !errors.Is(de, emailErr) || !errors.Is(de, smsErr) {
		t.Error("expected both channel errors to unwrap")
	}
	if len(de.Channels) != 2 || de.Channels[0] != ChannelEmail || de.Channels[1] != ChannelSMS {
		t.Errorf("channels = %v", de.Channels)
	}
	if de.Error() != de.Reason {
		t.Errorf("Error() = %q, want reason", de.Error())
	}
}
