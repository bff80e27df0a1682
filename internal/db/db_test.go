package db

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := openTestDB(t)

	if err := database.Migrate(); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	for _, table := range []string{"records", "version_seq", "event_log"} {
		var count int
		err := database.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?
		`, table).Scan(&count)
		if err != nil {
			t.Fatalf("check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	// The version counter row is seeded exactly once.
	var value int64
	if err := database.QueryRow("SELECT value FROM version_seq WHERE id = 1").Scan(&value); err != nil {
		t.Fatalf("read version_seq: %v", err)
	}
	if value != 0 {
		t.Errorf("expected version counter to start at 0, got %d", value)
	}
}

func TestMigrationStatus(t *testing.T) {
	database := openTestDB(t)

	applied, pending, err := database.MigrationStatus()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(applied) != 0 || len(pending) == 0 {
		t.Errorf("fresh database should have only pending migrations, got %d applied / %d pending", len(applied), len(pending))
	}

	if err := database.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	applied, pending, err = database.MigrationStatus()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(applied) == 0 || len(pending) != 0 {
		t.Errorf("migrated database should have no pending migrations, got %d applied / %d pending", len(applied), len(pending))
	}
}

func TestPathIsRecorded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()

	if database.Path() != path {
		t.Errorf("expected path %s, got %s", path, database.Path())
	}
}
