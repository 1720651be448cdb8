package model

import "time"

// UserToken records an issued refresh token. Access tokens derived from the
// same login share its JTI, so blacklisting this row revokes them as well.
type UserToken struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	JTI           string       `gorm:"column:jti;size:64;not null;uniqueIndex" json:"jti"`
	UserID        uint         `gorm:"not null;index" json:"user_id"`
	ExpiresAt     time.Time    `gorm:"not null" json:"expires_at"`
	IsBlacklisted bool         `gorm:"not null" json:"is_blacklisted"`
	Status        RecordStatus `gorm:"size:16;not null;index" json:"-"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (UserToken) TableName() string {
	return "user_tokens"
}
