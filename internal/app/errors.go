package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrInactiveUser      = errors.New("inactive user")
	ErrInvalidUser       = errors.New("user not found")
	ErrPasswordMismatch  = errors.New("current password did not match")
	ErrSuperuserExists   = errors.New("superuser already exists")

	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenTypeMismatch = errors.New("invalid token type")
	ErrTokenRevoked      = errors.New("token has been blacklisted")
	ErrTokenMalformed    = errors.New("invalid token")

	ErrInvalidAPIKey = errors.New("invalid api key")

	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrSessionBusy     = errors.New("session is busy")
	ErrUpstream        = errors.New("agent upstream failed")
	ErrStreamAborted   = errors.New("stream aborted")
)
