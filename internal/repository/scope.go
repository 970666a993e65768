package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a row does not exist or is outside the caller's tenant
var ErrNotFound = errors.New("record not found")

// ForTenant narrows a query to rows owned by tenantID.
//
// A nil tenant matches nothing: an unscoped query must never fall back to
// returning every tenant's rows.
func ForTenant(tenantID *uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == nil || *tenantID == uuid.Nil {
			return db.Where("1 = 0")
		}
		return db.Where(clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: "tenant_id"},
			Value:  *tenantID,
		})
	}
}

// Paginate applies page/pageSize with sane bounds
func Paginate(page, pageSize int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		switch {
		case pageSize <= 0:
			pageSize = 50
		case pageSize > 200:
			pageSize = 200
		}
		return db.Offset((page - 1) * pageSize).Limit(pageSize)
	}
}

// notFound maps gorm's not-found error to ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
