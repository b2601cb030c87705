package models

import "time"

// User is an account record. Exactly one of the two identities is set:
// Email+PassHash for password sign-in, ClientID for external clients.
type User struct {
	ID        int64
	Email     string
	PassHash  []byte
	ClientID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserInfo is the profile owned 1:1 by a user.
type UserInfo struct {
	UserID int64
	Name   string
	Age    int
	Gender string
}

// Identity is the verified subject attached to a request context by the
// auth middleware. It lives for one request only.
type Identity struct {
	UserID int64
	Email  string
}
