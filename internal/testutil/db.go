package testutil

import (
	"database/sql"
	"testing"

	"storefront/internal/db"
)

// SetupTestDB creates a temporary in-memory SQLite database with migrations applied.
// Returns the database connection and a cleanup function that should be deferred.
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.ApplyMigrations(database, db.MigrationsFS); err != nil {
		database.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	cleanup := func() {
		database.Close()
	}

	return database, cleanup
}
