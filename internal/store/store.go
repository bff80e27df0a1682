// Package store provides the destination persistence layer for migrated
// records, handling version counters, field-version stamping, and timestamps.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"taskbridge/internal/db"
	"taskbridge/internal/domain"
)

// Store wraps the destination database. Every write is per-record; a failure
// mid-migration leaves a well-defined partial state.
type Store struct {
	db *db.DB
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// Get returns the record for (schema, key), or nil when absent.
func (s *Store) Get(schema, key string) (*domain.Record, error) {
	row := s.db.QueryRow(`
		SELECT schema, key, payload, version, field_versions, created_at, updated_at
		FROM records
		WHERE schema = ? AND key = ?
	`, schema, key)

	return scanRecord(row)
}

// Exists reports whether a record exists for (schema, key).
func (s *Store) Exists(schema, key string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM records WHERE schema = ? AND key = ?", schema, key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	return count > 0, nil
}

// Put upserts a record, bumping the global version counter and stamping the
// new version onto every field whose value changed (or that is new). Fields
// removed by the write keep no version entry.
func (s *Store) Put(schema, key string, payload json.RawMessage) (*domain.Record, error) {
	var out *domain.Record

	err := s.withTx(func(tx *sql.Tx) error {
		version, err := nextVersion(tx)
		if err != nil {
			return err
		}

		existing, err := getTx(tx, schema, key)
		if err != nil {
			return err
		}

		fieldVersions := make(map[string]int64)
		var oldFields map[string]interface{}
		if existing != nil {
			for f, v := range existing.FieldVersions {
				fieldVersions[f] = v
			}
			_ = json.Unmarshal(existing.Payload, &oldFields)
		}

		var newFields map[string]interface{}
		if err := json.Unmarshal(payload, &newFields); err != nil {
			return fmt.Errorf("payload is not a JSON object: %w", err)
		}

		for field, value := range newFields {
			old, had := oldFields[field]
			if !had || !jsonEqual(old, value) {
				fieldVersions[field] = version
			}
		}
		for field := range fieldVersions {
			if _, ok := newFields[field]; !ok {
				delete(fieldVersions, field)
			}
		}

		fvJSON, err := json.Marshal(fieldVersions)
		if err != nil {
			return fmt.Errorf("failed to encode field versions: %w", err)
		}

		now := time.Now().UTC().Format("2006-01-02T15:04:05Z")
		_, err = tx.Exec(`
			INSERT INTO records (schema, key, payload, version, field_versions, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(schema, key) DO UPDATE SET
				payload = excluded.payload,
				version = excluded.version,
				field_versions = excluded.field_versions,
				updated_at = excluded.updated_at
		`, schema, key, string(payload), version, string(fvJSON), now, now)
		if err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}

		rec, err := getTx(tx, schema, key)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Delete removes a record. Missing records are not an error.
func (s *Store) Delete(schema, key string) error {
	_, err := s.db.Exec("DELETE FROM records WHERE schema = ? AND key = ?", schema, key)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Count returns the total number of records.
func (s *Store) Count() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Stats returns per-schema record counts.
func (s *Store) Stats() (map[string]int, error) {
	rows, err := s.db.Query("SELECT schema, COUNT(*) FROM records GROUP BY schema")
	if err != nil {
		return nil, fmt.Errorf("failed to query record stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var schema string
		var count int
		if err := rows.Scan(&schema, &count); err != nil {
			return nil, fmt.Errorf("failed to scan record stats: %w", err)
		}
		stats[schema] = count
	}
	return stats, rows.Err()
}

func nextVersion(tx *sql.Tx) (int64, error) {
	var version int64
	err := tx.QueryRow(`
		UPDATE version_seq SET value = value + 1 WHERE id = 1
		RETURNING value
	`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to advance version counter: %w", err)
	}
	return version, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func getTx(tx *sql.Tx, schema, key string) (*domain.Record, error) {
	row := tx.QueryRow(`
		SELECT schema, key, payload, version, field_versions, created_at, updated_at
		FROM records
		WHERE schema = ? AND key = ?
	`, schema, key)

	return scanRecord(row)
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var rec domain.Record
	var payload, fieldVersions, createdAt, updatedAt string

	err := row.Scan(&rec.Schema, &rec.Key, &payload, &rec.Version, &fieldVersions, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.Payload = json.RawMessage(payload)
	if err := json.Unmarshal([]byte(fieldVersions), &rec.FieldVersions); err != nil {
		return nil, fmt.Errorf("failed to parse field versions: %w", err)
	}
	if t, err := time.Parse("2006-01-02T15:04:05Z", createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse("2006-01-02T15:04:05Z", updatedAt); err == nil {
		rec.UpdatedAt = t
	}

	return &rec, nil
}

// jsonEqual compares two decoded JSON values for deep equality by
// re-encoding, which normalizes map ordering.
func jsonEqual(a, b interface{}) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}
