package option

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption tweaks a gorm query built by the generic repository.
type QueryOption func(*gorm.DB) *gorm.DB

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Limit(limit) }
}

func WithOffset(offset int) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Offset(offset) }
}

func WithOrder(order string) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Order(order) }
}

// WithLockForUpdate takes a row lock inside an open transaction. Callers must
// pair it with Repository.WithTrx. SQLite serializes writers on its own and
// rejects FOR UPDATE, so the clause is skipped there.
func WithLockForUpdate() QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if db.Dialector.Name() == "sqlite" {
			return db
		}
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
}

func WithCondition(query interface{}, args ...interface{}) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) }
}
