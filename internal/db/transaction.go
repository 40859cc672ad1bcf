package db

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type txContextKey struct{}

// TxManager runs a function inside one database transaction. Repositories
// called with the context passed to fn join that transaction.
type TxManager struct {
	database *gorm.DB
}

func NewTxManager(database *gorm.DB) *TxManager {
	return &TxManager{database: database}
}

func (manager *TxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return manager.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})
}

func connection(ctx context.Context, database *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return tx
	}
	return database.WithContext(ctx)
}

// lockingRead adds FOR UPDATE where the dialect supports row locks. SQLite
// already serializes writers for the whole database.
func lockingRead(conn *gorm.DB) *gorm.DB {
	if conn.Dialector.Name() == DriverPostgres {
		return conn.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return conn
}

// IsUniqueViolation reports whether err came from a unique index rejecting a write.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
