package ics

import (
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

const productID = "-//MaintCue//Maintenance Reminders//EN"

// Invite describes a single maintenance task as a calendar event.
type Invite struct {
	UID         string
	Summary     string
	Description string
	Due         time.Time
	// Location is the timezone the event is placed in. Defaults to the
	// location of Due.
	Location *time.Location
}

var ErrEmptySummary = errors.New("ics: summary is required")

// Build renders the invite as an iCalendar document with one event from
// 09:00 to 09:30 on the due date. A random UID is assigned when none is set.
func Build(inv Invite) ([]byte, error) {
	summary := strings.TrimSpace(inv.Summary)
	if summary == "" {
		return nil, ErrEmptySummary
	}
	if inv.Due.IsZero() {
		return nil, errors.New("ics: due date is required")
	}

	loc := inv.Location
	if loc == nil {
		loc = inv.Due.Location()
	}
	due := inv.Due.In(loc)
	start := time.Date(due.Year(), due.Month(), due.Day(), 9, 0, 0, 0, loc)

	uid := inv.UID
	if uid == "" {
		uid = uuid.NewString() + "@maintcue.com"
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	now := time.Now()
	event := cal.AddEvent(uid)
	event.SetDtStampTime(now)
	event.SetCreatedTime(now)
	event.SetStartAt(start)
	event.SetEndAt(start.Add(30 * time.Minute))
	event.SetSummary(summary)
	if inv.Description != "" {
		event.SetDescription(inv.Description)
	}

	return []byte(cal.Serialize()), nil
}
