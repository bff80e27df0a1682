package testutil

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"taskbridge/internal/db"
	"taskbridge/internal/localstore"
)

// TempDB creates a temporary destination database for testing
func TempDB(t *testing.T) *db.DB {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}

// SeedLocal puts a JSON-encoded record into a local store
func SeedLocal(t *testing.T, st localstore.Store, key string, record map[string]interface{}) {
	t.Helper()

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Failed to encode record %s: %v", key, err)
	}
	if err := st.Put(key, data); err != nil {
		t.Fatalf("Failed to seed record %s: %v", key, err)
	}
}

// AssertNoError asserts that an error is nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

// AssertError asserts that an error is not nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}
