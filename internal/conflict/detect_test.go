package conflict

import (
	"encoding/json"
	"strings"
	"testing"

	"taskbridge/internal/domain"
)

func remoteRecord(payload string) *domain.Record {
	return &domain.Record{
		Schema:  "tasks",
		Key:     "tasks:1",
		Payload: json.RawMessage(payload),
	}
}

func detect(t *testing.T, local string, remote *domain.Record) Detection {
	t.Helper()
	det, err := Detect("tasks", "tasks:1", json.RawMessage(local), remote)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	return det
}

func TestDetectNewWhenRemoteMissing(t *testing.T) {
	det := detect(t, `{"id":"t1"}`, nil)
	if det.Outcome != OutcomeNew {
		t.Errorf("expected new, got %v", det.Outcome)
	}
}

func TestDetectIdenticalIgnoresServerFields(t *testing.T) {
	det := detect(t,
		`{"id":"t1","title":"a","version":3,"updated_at":"2026-01-01T00:00:00Z"}`,
		remoteRecord(`{"id":"t1","title":"a","created_at":"2026-02-02T00:00:00Z","field_versions":{"title":9}}`))
	if det.Outcome != OutcomeIdentical {
		t.Errorf("server-generated fields should not trigger a conflict, got %v", det.Outcome)
	}
}

func TestDetectEmptyLocalTrustsRemote(t *testing.T) {
	det := detect(t,
		`{"title":"","tags":[],"meta":{}}`,
		remoteRecord(`{"title":"filled in remotely","tags":["a"]}`))
	if det.Outcome != OutcomeIdentical {
		t.Errorf("an empty local record should defer to the destination, got %v", det.Outcome)
	}
}

func TestDetectDuplicateKey(t *testing.T) {
	det := detect(t,
		`{"id":"local-1","title":"shared"}`,
		remoteRecord(`{"id":"remote-1","title":"shared"}`))
	if det.Outcome != OutcomeConflict {
		t.Fatalf("expected conflict, got %v", det.Outcome)
	}
	if det.Conflict.Type != domain.ConflictDuplicateKey {
		t.Errorf("expected duplicate_key, got %s", det.Conflict.Type)
	}
	if det.Conflict.Field != "id" {
		t.Errorf("expected field id, got %q", det.Conflict.Field)
	}
}

func TestDetectSchemaMismatch(t *testing.T) {
	det := detect(t,
		`{"id":"t1","count":"5"}`,
		remoteRecord(`{"id":"t1","count":5}`))
	if det.Outcome != OutcomeConflict {
		t.Fatalf("expected conflict, got %v", det.Outcome)
	}
	if det.Conflict.Type != domain.ConflictSchemaMismatch {
		t.Errorf("expected schema_mismatch, got %s", det.Conflict.Type)
	}
	if det.Conflict.Field != "count" {
		t.Errorf("expected field count, got %q", det.Conflict.Field)
	}
}

func TestDetectNullIsNotSchemaMismatch(t *testing.T) {
	det := detect(t,
		`{"id":"t1","desc":null}`,
		remoteRecord(`{"id":"t1","desc":"written remotely"}`))
	if det.Outcome != OutcomeConflict {
		t.Fatalf("expected conflict, got %v", det.Outcome)
	}
	if det.Conflict.Type != domain.ConflictValueDiverge {
		t.Errorf("null against a value is divergence, not a shape change; got %s", det.Conflict.Type)
	}
}

func TestDetectRenameRequired(t *testing.T) {
	det := detect(t,
		`{"title":"alpha","body":"one"}`,
		remoteRecord(`{"title":"beta","body":"two"}`))
	if det.Outcome != OutcomeConflict {
		t.Fatalf("expected conflict, got %v", det.Outcome)
	}
	if det.Conflict.Type != domain.ConflictRenameRequired {
		t.Errorf("expected rename_required, got %s", det.Conflict.Type)
	}
}

func TestDetectValueDivergence(t *testing.T) {
	det := detect(t,
		`{"id":"t1","title":"local","status":"open"}`,
		remoteRecord(`{"id":"t1","title":"remote","status":"open"}`))
	if det.Outcome != OutcomeConflict {
		t.Fatalf("expected conflict, got %v", det.Outcome)
	}
	c := det.Conflict
	if c.Type != domain.ConflictValueDiverge {
		t.Errorf("expected value_divergence, got %s", c.Type)
	}
	if c.Field != "title" {
		t.Errorf("expected field title, got %q", c.Field)
	}
	if c.ID == "" {
		t.Error("conflict should get an id")
	}
	if c.Schema != "tasks" || c.Key != "tasks:1" {
		t.Errorf("conflict should carry its location, got %s/%s", c.Schema, c.Key)
	}
	if !strings.Contains(c.Suggestion, "remote") || !strings.Contains(c.Suggestion, "local") {
		t.Errorf("suggestion should include the diff headers, got %q", c.Suggestion)
	}
}

func TestDetectOneSidedFieldIsDivergence(t *testing.T) {
	det := detect(t,
		`{"id":"t1","title":"x","extra":"local only"}`,
		remoteRecord(`{"id":"t1","title":"x"}`))
	if det.Outcome != OutcomeConflict {
		t.Fatalf("expected conflict, got %v", det.Outcome)
	}
	if det.Conflict.Type != domain.ConflictValueDiverge {
		t.Errorf("expected value_divergence, got %s", det.Conflict.Type)
	}
	if det.Conflict.Field != "extra" {
		t.Errorf("expected field extra, got %q", det.Conflict.Field)
	}
}

func TestDetectMalformedRecords(t *testing.T) {
	if _, err := Detect("tasks", "tasks:1", json.RawMessage(`[1,2,3]`), remoteRecord(`{}`)); err == nil {
		t.Error("a non-object local record should be rejected")
	}
	if _, err := Detect("tasks", "tasks:1", json.RawMessage(`{}`), remoteRecord(`"oops"`)); err == nil {
		t.Error("a non-object remote record should be rejected")
	}
}
