package model

import "time"

type ChatSession struct {
	ID             uint         `gorm:"primaryKey" json:"-"`
	SessionID      string       `gorm:"size:100;not null;uniqueIndex" json:"session_id"`
	UserID         uint         `gorm:"not null;index" json:"user_id"`
	Title          *string      `gorm:"size:255" json:"title"`
	DateTime       time.Time    `gorm:"not null;index" json:"date_time"`
	SharedToPublic bool         `gorm:"not null" json:"shared_to_public"`
	Status         RecordStatus `gorm:"size:16;not null;index" json:"-"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

func (s *ChatSession) HasTitle() bool {
	return s.Title != nil && *s.Title != ""
}
