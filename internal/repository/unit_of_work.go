package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups every repository bound to the same *gorm.DB, which is
// either the root handle or an open transaction.
type Repositories struct {
	Users    *UserRepository
	APIKeys  *APIKeyRepository
	Tokens   *UserTokenRepository
	Sessions *SessionRepository
	Messages *MessageRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Users:    NewUserRepository(db),
		APIKeys:  NewAPIKeyRepository(db),
		Tokens:   NewUserTokenRepository(db),
		Sessions: NewSessionRepository(db),
		Messages: NewMessageRepository(db),
	}
}

type UnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Do runs fn inside a transaction. It commits when fn returns nil and rolls
// back on error or panic.
func (u *UnitOfWork) Do(ctx context.Context, fn func(tx *Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
