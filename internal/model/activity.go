package model

import "time"

// SessionActivity is published after an exchange is persisted so the
// session's last-activity timestamp can be advanced off the request path.
type SessionActivity struct {
	SessionID string    `json:"session_id"`
	MessageID uint      `json:"message_id"`
	Kind      string    `json:"kind"`
	At        time.Time `json:"at"`
}

const (
	ActivityExchange = "exchange"
	ActivityResubmit = "resubmit"
)

// All lists every table for auto migration, parents first.
func All() []any {
	return []any{&User{}, &ApiKey{}, &UserToken{}, &ChatSession{}, &ChatMessage{}}
}
