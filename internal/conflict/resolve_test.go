package conflict

import (
	"encoding/json"
	"testing"

	"taskbridge/internal/domain"
)

func testConflict(local string) *domain.DataConflict {
	return &domain.DataConflict{
		ID:         "c-1",
		Type:       domain.ConflictValueDiverge,
		Schema:     "tasks",
		Key:        "tasks:1",
		LocalValue: json.RawMessage(local),
	}
}

func decodePayload(t *testing.T, payload json.RawMessage) map[string]interface{} {
	t.Helper()
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("payload is not an object: %v", err)
	}
	return fields
}

func TestResolveSkip(t *testing.T) {
	op, err := Resolve(testConflict(`{"title":"local"}`), domain.ResolutionSkip, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if op.Kind != OpNone {
		t.Errorf("skip should produce no write, got %v", op.Kind)
	}
}

func TestResolveOverwrite(t *testing.T) {
	op, err := Resolve(testConflict(`{"title":"local"}`), domain.ResolutionOverwrite, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if op.Kind != OpPut || op.Key != "tasks:1" {
		t.Fatalf("overwrite should write the original key, got %+v", op)
	}
	if string(op.Payload) != `{"title":"local"}` {
		t.Errorf("overwrite should write the local payload verbatim, got %s", op.Payload)
	}
}

func TestResolveMergeFieldLevel(t *testing.T) {
	c := testConflict(`{"id":"t1","title":"local edit","status":"done","version":5}`)
	remote := &domain.Record{
		Schema:  "tasks",
		Key:     "tasks:1",
		Payload: json.RawMessage(`{"id":"t1","title":"remote edit","status":"open","assignee":"bob","updated_at":"2026-03-01T00:00:00Z"}`),
		Version: 7,
		FieldVersions: map[string]int64{
			"id":       3,
			"title":    7,
			"status":   3,
			"assignee": 3,
		},
	}

	op, err := Resolve(c, domain.ResolutionMerge, remote, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	fields := decodePayload(t, op.Payload)

	if fields["title"] != "remote edit" {
		t.Errorf("field modified remotely after the snapshot should keep the remote value, got %v", fields["title"])
	}
	if fields["status"] != "done" {
		t.Errorf("field untouched remotely since the snapshot should keep the local value, got %v", fields["status"])
	}
	if fields["assignee"] != "bob" {
		t.Errorf("remote-only field should survive the merge, got %v", fields["assignee"])
	}
	if _, ok := fields["updated_at"]; ok {
		t.Error("server-generated fields should be stripped from the merged payload")
	}
	if _, ok := fields["version"]; ok {
		t.Error("the snapshot version marker should be stripped from the merged payload")
	}
}

func TestResolveMergeNeverSyncedLocal(t *testing.T) {
	// No version field means the client never synced this record; every
	// remote field edit postdates the (empty) snapshot.
	c := testConflict(`{"id":"t1","title":"local"}`)
	remote := &domain.Record{
		Payload:       json.RawMessage(`{"id":"t1","title":"remote"}`),
		FieldVersions: map[string]int64{"id": 1, "title": 1},
	}

	op, err := Resolve(c, domain.ResolutionMerge, remote, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	fields := decodePayload(t, op.Payload)
	if fields["title"] != "remote" {
		t.Errorf("remote edits postdating an unsynced snapshot should win, got %v", fields["title"])
	}
}

func TestResolveMergeRemoteGone(t *testing.T) {
	c := testConflict(`{"id":"t1","title":"local"}`)
	op, err := Resolve(c, domain.ResolutionMerge, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if string(op.Payload) != `{"id":"t1","title":"local"}` {
		t.Errorf("with the remote gone the local payload wins whole, got %s", op.Payload)
	}
}

func TestResolveRenameDerivesFreeKey(t *testing.T) {
	taken := map[string]bool{
		"tasks:1":            true,
		"tasks:1-migrated":   true,
		"tasks:1-migrated-2": true,
	}
	keyExists := func(schema, key string) (bool, error) {
		return taken[key], nil
	}

	op, err := Resolve(testConflict(`{"title":"local"}`), domain.ResolutionRename, nil, keyExists)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if op.Key != "tasks:1-migrated-3" {
		t.Errorf("expected the first free derived key, got %q", op.Key)
	}
	if op.Kind != OpPut {
		t.Errorf("rename should produce a write, got %v", op.Kind)
	}
}

func TestResolveRenameWithoutExistenceCheck(t *testing.T) {
	op, err := Resolve(testConflict(`{"title":"local"}`), domain.ResolutionRename, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if op.Key != "tasks:1-migrated" {
		t.Errorf("expected the default derived key, got %q", op.Key)
	}
}

func TestResolveInvalidStrategy(t *testing.T) {
	if _, err := Resolve(testConflict(`{}`), "escalate", nil, nil); err == nil {
		t.Error("an unknown strategy should be rejected")
	}
}
