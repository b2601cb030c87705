package models

import "time"

// Resume statuses, in application order.
const (
	StatusApply      = "APPLY"
	StatusDrop       = "DROP"
	StatusPass       = "PASS"
	StatusInterview1 = "INTERVIEW1"
	StatusInterview2 = "INTERVIEW2"
	StatusFinalPass  = "FINAL_PASS"
)

// ResumeStatuses enumerates every status a resume may hold.
var ResumeStatuses = []string{
	StatusApply,
	StatusDrop,
	StatusPass,
	StatusInterview1,
	StatusInterview2,
	StatusFinalPass,
}

// ValidResumeStatus reports whether status is one of the enumerated values.
func ValidResumeStatus(status string) bool {
	for _, s := range ResumeStatuses {
		if status == s {
			return true
		}
	}
	return false
}

type Resume struct {
	ID         int64
	UserID     int64
	AuthorName string
	Title      string
	Content    string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
