package schemas

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a ScheduledAction.
// Pending moves to exactly one of Sent or Failed; nothing leaves Sent or Failed.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether a dispatch attempt has concluded for a record in this status.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// wakePrefix namespaces timer registrations so a wake name maps back to exactly one record.
const wakePrefix = "scheduled-message-"

// ScheduledAction is the persisted intent "send Payload to Recipient at ScheduledTime".
// Times are epoch milliseconds so the record stays a flat string/number document.
type ScheduledAction struct {
	ID            string `json:"id"`
	Recipient     string `json:"recipient"`
	Payload       string `json:"payload"`
	ScheduledTime int64  `json:"scheduledTime"`
	Status        Status `json:"status"`
	// Reason explains a Failed status. Empty for Pending and Sent records.
	Reason      string `json:"reason,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	AttemptedAt int64  `json:"attemptedAt,omitempty"`
}

// At returns ScheduledTime as a time.Time.
func (a ScheduledAction) At() time.Time {
	return time.UnixMilli(a.ScheduledTime)
}

// Due reports whether the action should already have fired at now.
func (a ScheduledAction) Due(now time.Time) bool {
	return a.ScheduledTime <= now.UnixMilli()
}

// WakeName is the timer registration name for a record id. Deriving it from the id
// keeps re-arming idempotent.
func WakeName(id string) string {
	return wakePrefix + id
}

// IDFromWakeName inverts WakeName. ok is false for names this package did not produce.
func IDFromWakeName(name string) (id string, ok bool) {
	if !strings.HasPrefix(name, wakePrefix) {
		return "", false
	}
	id = strings.TrimPrefix(name, wakePrefix)
	return id, id != ""
}
