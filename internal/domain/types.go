package domain

import (
	"encoding/json"
	"time"
)

// MigrationStatus represents the lifecycle status of a migration run
type MigrationStatus string

const (
	StatusPending   MigrationStatus = "pending"
	StatusRunning   MigrationStatus = "running"
	StatusPaused    MigrationStatus = "paused"
	StatusCompleted MigrationStatus = "completed"
	StatusFailed    MigrationStatus = "failed"
)

// Terminal reports whether the status is a terminal state
func (s MigrationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MigrationStage represents the current stage of a running migration
type MigrationStage string

const (
	StageScanning   MigrationStage = "scanning"
	StageBackingUp  MigrationStage = "backing_up"
	StageValidating MigrationStage = "validating"
	StageWriting    MigrationStage = "writing"
	StageResolving  MigrationStage = "resolving"
	StageDone       MigrationStage = "done"
)

// ConflictType classifies a detected local/remote divergence
type ConflictType string

const (
	ConflictDuplicateKey   ConflictType = "duplicate_key"
	ConflictSchemaMismatch ConflictType = "schema_mismatch"
	ConflictValueDiverge   ConflictType = "value_divergence"
	ConflictRenameRequired ConflictType = "rename_required"
)

// Resolution represents a caller-chosen conflict resolution strategy
type Resolution string

const (
	ResolutionSkip      Resolution = "skip"
	ResolutionOverwrite Resolution = "overwrite"
	ResolutionMerge     Resolution = "merge"
	ResolutionRename    Resolution = "rename"
)

// EventType represents the type of a migration event
type EventType string

const (
	EventStarted          EventType = "started"
	EventProgress         EventType = "progress"
	EventConflictDetected EventType = "conflict_detected"
	EventPaused           EventType = "paused"
	EventResolved         EventType = "resolved"
	EventCompleted        EventType = "completed"
	EventError            EventType = "error"
)

// MigrationProgress tracks per-stage progress for a run.
// ProcessedItems is monotonically non-decreasing and never exceeds TotalItems.
type MigrationProgress struct {
	Stage          MigrationStage `json:"stage"`
	TotalItems     int            `json:"total_items"`
	ProcessedItems int            `json:"processed_items"`
	CurrentItem    string         `json:"current_item,omitempty"`
	// EstimatedRemainingMS is absent until at least one item has been timed.
	EstimatedRemainingMS *int64 `json:"estimated_remaining_ms,omitempty"`
}

// DataConflict describes a divergence between a local record and the
// destination record sharing the same key.
type DataConflict struct {
	ID          string          `json:"id"`
	Type        ConflictType    `json:"type"`
	Schema      string          `json:"schema"`
	Key         string          `json:"key"`
	Field       string          `json:"field,omitempty"`
	LocalValue  json.RawMessage `json:"local_value,omitempty"`
	RemoteValue json.RawMessage `json:"remote_value,omitempty"`
	Suggestion  string          `json:"suggestion,omitempty"`
}

// MigrationState is the root aggregate for one migration run. It is owned
// exclusively by the orchestrator for the run's lifetime; callers only ever
// see copies.
type MigrationState struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Status    MigrationStatus   `json:"status"`
	Progress  MigrationProgress `json:"progress"`
	Conflicts []DataConflict    `json:"conflicts"`
	Error     string            `json:"error,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the state safe to hand to callers.
func (s *MigrationState) Clone() *MigrationState {
	out := *s
	out.Conflicts = make([]DataConflict, len(s.Conflicts))
	copy(out.Conflicts, s.Conflicts)
	if s.Progress.EstimatedRemainingMS != nil {
		ms := *s.Progress.EstimatedRemainingMS
		out.Progress.EstimatedRemainingMS = &ms
	}
	return &out
}

// BackupManifest describes an immutable point-in-time snapshot of local data
// taken before migration writes begin.
type BackupManifest struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	TotalItems  int       `json:"total_items"`
	Size        int64     `json:"size"`
	DataTypes   []string  `json:"data_types"`
	SnapshotRev string    `json:"snapshot_rev"`
}

// MigrationEvent is an ephemeral progress event consumed by reporter
// subscribers. The engine does not persist events itself.
type MigrationEvent struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// ConflictResolution is a caller-supplied instruction for a single conflict.
type ConflictResolution struct {
	ConflictID string     `json:"conflict_id"`
	Resolution Resolution `json:"resolution"`
}

// MigrationSummary is the payload of a terminal completed event.
type MigrationSummary struct {
	Success           bool  `json:"success"`
	ItemsMigrated     int   `json:"items_migrated"`
	ConflictsResolved int   `json:"conflicts_resolved"`
	DurationMS        int64 `json:"duration_ms"`
}

// Inventory is the result of scanning the client-side store. KeySizes covers
// known keys only; unknown data contributes to aggregate counts and nothing
// else.
type Inventory struct {
	TotalKeys   int              `json:"total_keys"`
	KnownKeys   int              `json:"known_keys"`
	UnknownKeys int              `json:"unknown_keys"`
	TotalSize   int64            `json:"total_size"`
	KeySizes    map[string]int64 `json:"key_sizes,omitempty"`
}

// Record is a destination-side record. Version and FieldVersions are
// server-assigned and never participate in field comparison.
type Record struct {
	Schema        string           `json:"schema"`
	Key           string           `json:"key"`
	Payload       json.RawMessage  `json:"payload"`
	Version       int64            `json:"version"`
	FieldVersions map[string]int64 `json:"field_versions,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
