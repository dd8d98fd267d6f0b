package testutil

import (
	"path/filepath"
	"testing"

	"media-broker/internal/broker"
	"media-broker/internal/database"
)

// NewTestRegistry creates a migrated SQLite registry in a temp directory.
// A file database is used instead of ":memory:" so the connection pool
// behaves as in production. The registry is closed when the test completes.
func NewTestRegistry(t *testing.T, clock broker.Clock) *database.SQLiteRegistry {
	t.Helper()

	reg, err := database.NewSQLiteRegistry(filepath.Join(t.TempDir(), "media.db"), 4, clock)
	if err != nil {
		t.Fatalf("failed to open registry: %v", err)
	}
	if err := reg.Migrate(); err != nil {
		reg.Close()
		t.Fatalf("failed to migrate registry: %v", err)
	}

	t.Cleanup(func() {
		reg.Close()
	})

	return reg
}
