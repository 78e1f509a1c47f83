package store

import (
	"context"

	"github.com/dkeye/Lectern/internal/domain"
	"gorm.io/gorm"
)

// saveVersioned updates every column of next where id and version match.
// Zero rows affected means the row is gone or another writer got there
// first.
func saveVersioned(ctx context.Context, db *gorm.DB, next any, id string, version int, notFound error) error {
	tx := db.WithContext(ctx)
	res := tx.Model(next).
		Where("version = ?", version).
		Select("*").
		Omit("created_at").
		Updates(next)
	if res.Error != nil {
		return storageErr("save", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := tx.Model(next).Where("id = ?", id).Count(&count).Error; err != nil {
		return storageErr("save", err)
	}
	if count == 0 {
		return notFound
	}
	return domain.ErrVersionConflict
}

func storageErr(op string, err error) error {
	return domain.Wrap(domain.KindStorage, op, err)
}
