package option

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm query before it is executed by the repository.
type QueryOption func(*gorm.DB) *gorm.DB

// Operator is a comparison operator usable in ad-hoc conditions.
type Operator string

const (
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	NE  Operator = "<>"
)

// Condition expresses a single field comparison outside the struct-equality query.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(cond Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
	}
}

// QuerySortBy describes a sort request. Allow guards against sorting on
// arbitrary caller-provided columns.
type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := sort.SortBy
		if column == "" {
			column = "created_at"
		}
		if sort.Allow != nil && !sort.Allow[column] {
			column = "created_at"
		}

		order := "ASC"
		if v := sort.OrderBy; v == "desc" || v == "DESC" {
			order = "DESC"
		}

		return db.Order(fmt.Sprintf("%s %s", column, order))
	}
}

func ApplyPagination(limit, offset int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	}
}

// LockingUpdate is a gorm scope enabling SELECT ... FOR UPDATE on every query
// in a transaction.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// WithLockingUpdate row-locks a single repository query.
func WithLockingUpdate() QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return LockingUpdate(db)
	}
}
