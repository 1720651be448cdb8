package repository

import (
	"gorm.io/gorm"

	"agentchat/internal/model"
)

// Active excludes soft-deleted rows of the given table. The table name is
// used to qualify the column so the scope stays valid inside joins.
func Active(table string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(table+".status <> ?", model.StatusDeleted)
	}
}

func paginate(offset, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if offset > 0 {
			db = db.Offset(offset)
		}
		if limit > 0 {
			db = db.Limit(limit)
		}
		return db
	}
}
