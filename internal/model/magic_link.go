package model

import "time"

// Magic link purposes. A login link is emailed to the homeowner; visiting it
// yields an exchange code that the browser trades for a session token.
const (
	PurposeLogin    = "login"
	PurposeExchange = "exchange"
)

type MagicLink struct {
	ID          int64      `json:"id"`
	Token       string     `json:"token"`
	Email       string     `json:"email"`
	Purpose     string     `json:"purpose"`
	HouseholdID *int64     `json:"household_id"`
	ExpiresAt   time.Time  `json:"expires_at"`
	UsedAt      *time.Time `json:"used_at"`
	Attempts    int        `json:"attempts"`
	CreatedAt   time.Time  `json:"created_at"`
}
