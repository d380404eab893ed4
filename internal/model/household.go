package model

import (
	"strings"
	"time"
)

// Notification preferences accepted from the homeowner settings form.
const (
	PreferenceEmailOnly = "email_only"
	PreferenceSMSOnly   = "sms_only"
	PreferenceBoth      = "both"
)

type Household struct {
	ID                     int64     `json:"id"`
	Name                   string    `json:"name"`
	Email                  string    `json:"email"`
	Phone                  string    `json:"phone"`
	ZipCode                string    `json:"zip_code"`
	NotificationPreference string    `json:"notification_preference"`
	SMSOptIn               bool      `json:"sms_opt_in"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// FirstName returns the first word of the household display name, used as
// the greeting in reminder emails.
func (h Household) FirstName() string {
	fields := strings.Fields(h.Name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

// ValidPreference reports whether p is one of the known notification preferences.
func ValidPreference(p string) bool {
	switch p {
	case PreferenceEmailOnly, PreferenceSMSOnly, PreferenceBoth:
		return true
	}
	return false
}
