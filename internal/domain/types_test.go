package domain

import (
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	terminal := map[MigrationStatus]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusPaused:    false,
		StatusCompleted: true,
		StatusFailed:    true,
	}
	for status, want := range terminal {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, !want, want)
		}
	}
}

func TestStateCloneIsIndependent(t *testing.T) {
	eta := int64(1500)
	state := &MigrationState{
		ID:     "m-1",
		UserID: "alice",
		Status: StatusPaused,
		Progress: MigrationProgress{
			Stage:                StageWriting,
			TotalItems:           10,
			ProcessedItems:       4,
			EstimatedRemainingMS: &eta,
		},
		Conflicts: []DataConflict{{ID: "c-1", Key: "tasks:1"}},
		StartedAt: time.Now(),
	}

	clone := state.Clone()
	clone.Conflicts[0].Key = "mutated"
	clone.Conflicts = append(clone.Conflicts, DataConflict{ID: "c-2"})
	*clone.Progress.EstimatedRemainingMS = 9999
	clone.Status = StatusFailed

	if state.Conflicts[0].Key != "tasks:1" {
		t.Error("mutating a clone's conflict leaked into the original")
	}
	if len(state.Conflicts) != 1 {
		t.Error("appending to a clone's conflicts leaked into the original")
	}
	if *state.Progress.EstimatedRemainingMS != 1500 {
		t.Error("mutating a clone's ETA leaked into the original")
	}
	if state.Status != StatusPaused {
		t.Error("mutating a clone's status leaked into the original")
	}
}
