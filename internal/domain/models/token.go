package models

import "time"

// RefreshToken is the single durable refresh record kept per user.
// Token expiry is encoded inside the signed token itself; the stored row
// is the source of truth for which token is currently live.
type RefreshToken struct {
	UserID    int64
	Token     string
	IP        string
	CreatedAt time.Time
	UpdatedAt time.Time
}
