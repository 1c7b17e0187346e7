// Package repo holds the plumbing every GORM-backed repository shares.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base is embedded by a domain repository for model T. Every method takes an
// optional tx; nil means "not inside db.Client.WithTx".
type Base[T any] struct {
	db *gorm.DB
}

func NewBase[T any](db *gorm.DB) Base[T] {
	return Base[T]{db: db}
}

// DB returns the pooled handle bound to ctx.
func (b Base[T]) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Conn returns tx when the caller holds one, otherwise the pooled handle.
func (b Base[T]) Conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	switch {
	case tx == nil:
		return b.DB(ctx)
	case ctx == nil:
		return tx
	}
	return tx.WithContext(ctx)
}

// First loads the first T matching where. A miss surfaces as
// gorm.ErrRecordNotFound; see db.IsNotFound.
func (b Base[T]) First(ctx context.Context, tx *gorm.DB, where string, args ...any) (*T, error) {
	var row T
	if err := b.Conn(ctx, tx).Where(where, args...).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (b Base[T]) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*T, error) {
	return b.First(ctx, tx, "id = ?", id)
}

// LockByID loads T with SELECT ... FOR UPDATE so concurrent writers
// serialize on the row until tx ends. sqlite ignores the clause.
func (b Base[T]) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*T, error) {
	var row T
	err := b.Conn(ctx, tx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
