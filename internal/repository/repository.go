// Package repository is the SQLite data access layer: listing drafts and the
// queue of object deletes awaiting retry.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// timeLayout matches SQLite's CURRENT_TIMESTAMP so stored and generated
// values compare as strings.
const timeLayout = "2006-01-02 15:04:05"

// Repository wraps the database handle.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Ping checks DB connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func sqlTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
