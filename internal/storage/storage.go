package storage

import "errors"

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserInfoNotFound  = errors.New("user info not found")
	ErrTokenExists       = errors.New("refresh token already exists")
	ErrTokenNotFound     = errors.New("refresh token not found")
	ErrResumeNotFound    = errors.New("resume not found")
)
