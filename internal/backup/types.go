// Package backup snapshots known-schema client data into an addressable,
// append-only store before any destructive migration write, and restores it
// verbatim on request.
//
// Snapshots are deterministic JSON files named by manifest id, with a
// sha256-addressed revision over the canonical bytes. Manifests are never
// deleted by the engine; retention is an external policy.
package backup

import (
	"time"
)

// Snapshot is the on-disk shape of one backup. Record values are carried as
// raw JSON so that restore reproduces the captured bytes exactly.
type Snapshot struct {
	Meta    Meta              `json:"meta"`
	Records map[string]string `json:"records,omitempty"`
}

// Meta contains snapshot metadata.
type Meta struct {
	SchemaVersion int      `json:"schema_version"`
	ManifestID    string   `json:"manifest_id"`
	SnapshotRev   string   `json:"snapshot_rev,omitempty"`
	CreatedAt     string   `json:"created_at"`
	DataTypes     []string `json:"data_types,omitempty"`
}

// RestoreResult contains the result of a restore operation.
type RestoreResult struct {
	ManifestID  string `json:"manifest_id"`
	SnapshotRev string `json:"snapshot_rev"`
	Restored    int    `json:"restored"`
}

// FormatTimestamp formats a time.Time as ISO-8601 with Z suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
