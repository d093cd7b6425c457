package testutil

import (
	"testing"

	"dipcp-go/internal/database"
)

// NewTestStore creates an in-memory cache with the schema applied. It is
// closed when the test completes.
func NewTestStore(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
