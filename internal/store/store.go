// Package store is the credential store: persistence of users, organizations
// and memberships over GORM. It works unchanged on PostgreSQL and SQLite.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("store: conflict")
	// ErrInvalidEmail is returned for anything other than a bare address.
	ErrInvalidEmail = errors.New("store: invalid email address")
)

// Store wraps a *gorm.DB. A Store returned inside Tx is bound to that
// transaction.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for packages that keep their own tables.
func (s *Store) DB() *gorm.DB { return s.db }

// Tx runs fn inside a database transaction. fn must use only the Store it is
// given; returning an error rolls back.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// translate maps GORM sentinel errors onto store sentinels.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
