package domain

import (
	"fmt"
	"regexp"
)

// SchemaNameRegex validates registered schema names (lowercase slug)
var SchemaNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidateSchemaName validates a schema registry entry
func ValidateSchemaName(name string) error {
	if !SchemaNameRegex.MatchString(name) {
		return fmt.Errorf("invalid schema name %q: must be a lowercase slug", name)
	}
	return nil
}

// ValidateStatus validates a migration status
func ValidateStatus(status string) error {
	switch MigrationStatus(status) {
	case StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid status: must be one of: pending, running, paused, completed, failed")
	}
}

// ValidateStage validates a migration stage
func ValidateStage(stage string) error {
	switch MigrationStage(stage) {
	case StageScanning, StageBackingUp, StageValidating, StageWriting, StageResolving, StageDone:
		return nil
	default:
		return fmt.Errorf("invalid stage: must be one of: scanning, backing_up, validating, writing, resolving, done")
	}
}

// ValidateConflictType validates a conflict type
func ValidateConflictType(t string) error {
	switch ConflictType(t) {
	case ConflictDuplicateKey, ConflictSchemaMismatch, ConflictValueDiverge, ConflictRenameRequired:
		return nil
	default:
		return fmt.Errorf("invalid conflict type: must be one of: duplicate_key, schema_mismatch, value_divergence, rename_required")
	}
}

// ValidateResolution validates a conflict resolution strategy
func ValidateResolution(r string) error {
	switch Resolution(r) {
	case ResolutionSkip, ResolutionOverwrite, ResolutionMerge, ResolutionRename:
		return nil
	default:
		return fmt.Errorf("invalid resolution: must be one of: skip, overwrite, merge, rename")
	}
}
