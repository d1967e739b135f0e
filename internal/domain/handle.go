package domain

import "time"

// EphemeralHandle is a delivered message scheduled for deletion at FireAt.
type EphemeralHandle struct {
	ChatID    int64
	MessageID int
	FireAt    time.Time
}
