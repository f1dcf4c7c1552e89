package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is embedded by the report and account repositories. It binds the
// request context to every query and folds the RowsAffected checks that
// guarded writes (claims, deletes, password resets) depend on.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx. A nil ctx returns it unbound.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Touched reports whether a write matched at least one row.
func Touched(res *gorm.DB) (bool, error) {
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteByID removes the row of model's table with the given id and reports
// whether one existed.
func (b Base) DeleteByID(ctx context.Context, model any, id uuid.UUID) (bool, error) {
	return Touched(b.DB(ctx).Where("id = ?", id).Delete(model))
}
