package models

import "time"

// UserHistory records a single profile field change.
type UserHistory struct {
	ID           int64
	UserID       int64
	ChangedField string
	OldValue     string
	NewValue     string
	CreatedAt    time.Time
}
