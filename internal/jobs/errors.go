package jobs

import (
	"errors"
	"strings"
)

// Failure reasons recorded on reminders that could not be delivered.
const (
	ReasonHouseholdNotFound = "household not found"
	ReasonNoChannels        = "no valid notification channels"
)

// DeliveryError explains why a reminder was marked failed. Reason is what
// gets stored on the reminder.
type DeliveryError struct {
	Reason string
	// Channels lists the channels that were attempted and failed. Empty when
	// no delivery was attempted.
	Channels []string
	Err      error
}

func (e *DeliveryError) Error() string {
	return e.Reason
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

type channelFailure struct {
	channel string
	err     error
}

// failedChannels builds the error for a reminder whose every attempted
// channel failed.
func failedChannels(failures []channelFailure) *DeliveryError {
	de := &DeliveryError{}
	parts := make([]string, 0, len(failures))
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		de.Channels = append(de.Channels, f.channel)
		parts = append(parts, f.channel+" failed: "+f.err.Error())
		errs = append(errs, f.err)
	}
	de.Reason = strings.Join(parts, "; ")
	de.Err = errors.Join(errs...)
	return de
}
