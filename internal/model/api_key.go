package model

import "time"

// ApiKey is an opaque bearer credential for service-to-service calls. It is
// not tied to any user.
type ApiKey struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	Key       string       `gorm:"size:255;not null;uniqueIndex" json:"key"`
	Status    RecordStatus `gorm:"size:16;not null;index" json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (ApiKey) TableName() string {
	return "api_keys"
}
