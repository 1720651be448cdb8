package model

import "time"

type User struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"size:128;not null" json:"name"`
	Email        string       `gorm:"size:128;not null;index" json:"email"`
	Phone        string       `gorm:"size:32;not null;uniqueIndex" json:"phone"`
	PasswordHash string       `gorm:"size:255;not null" json:"-"`
	IsSuperuser  bool         `gorm:"not null" json:"is_superuser"`
	Status       RecordStatus `gorm:"size:16;not null;index" json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsActive() bool {
	return u.Status == StatusActive
}
