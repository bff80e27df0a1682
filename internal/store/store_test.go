package store

import (
	"encoding/json"
	"testing"

	"taskbridge/internal/testutil"
)

func TestPutStampsFieldVersions(t *testing.T) {
	s := New(testutil.TempDB(t))

	rec, err := s.Put("tasks", "tasks:1", json.RawMessage(`{"id":"t1","title":"a","status":"open"}`))
	testutil.AssertNoError(t, err)
	if rec.Version != 1 {
		t.Fatalf("first write should take version 1, got %d", rec.Version)
	}
	for _, field := range []string{"id", "title", "status"} {
		if rec.FieldVersions[field] != 1 {
			t.Errorf("field %s should be stamped 1, got %d", field, rec.FieldVersions[field])
		}
	}

	rec, err = s.Put("tasks", "tasks:1", json.RawMessage(`{"id":"t1","title":"b","status":"open"}`))
	testutil.AssertNoError(t, err)
	if rec.Version != 2 {
		t.Fatalf("second write should take version 2, got %d", rec.Version)
	}
	if rec.FieldVersions["title"] != 2 {
		t.Errorf("changed field should be restamped, got %d", rec.FieldVersions["title"])
	}
	if rec.FieldVersions["id"] != 1 || rec.FieldVersions["status"] != 1 {
		t.Errorf("unchanged fields should keep their stamps, got %v", rec.FieldVersions)
	}
}

func TestPutSharesOneVersionSequence(t *testing.T) {
	s := New(testutil.TempDB(t))

	a, err := s.Put("tasks", "tasks:1", json.RawMessage(`{"id":"a"}`))
	testutil.AssertNoError(t, err)
	b, err := s.Put("boards", "boards:main", json.RawMessage(`{"id":"b"}`))
	testutil.AssertNoError(t, err)

	if a.Version != 1 || b.Version != 2 {
		t.Errorf("the version counter is global across schemas, got %d and %d", a.Version, b.Version)
	}
}

func TestPutDropsRemovedFieldVersions(t *testing.T) {
	s := New(testutil.TempDB(t))

	_, err := s.Put("tasks", "tasks:1", json.RawMessage(`{"id":"t1","obsolete":"x"}`))
	testutil.AssertNoError(t, err)
	rec, err := s.Put("tasks", "tasks:1", json.RawMessage(`{"id":"t1"}`))
	testutil.AssertNoError(t, err)

	if _, ok := rec.FieldVersions["obsolete"]; ok {
		t.Errorf("removed field should lose its version entry, got %v", rec.FieldVersions)
	}
}

func TestPutRejectsNonObjectPayload(t *testing.T) {
	s := New(testutil.TempDB(t))
	if _, err := s.Put("tasks", "tasks:1", json.RawMessage(`[1,2,3]`)); err == nil {
		t.Error("a non-object payload should be rejected")
	}
}

func TestGetMissingRecord(t *testing.T) {
	s := New(testutil.TempDB(t))
	rec, err := s.Get("tasks", "tasks:missing")
	testutil.AssertNoError(t, err)
	if rec != nil {
		t.Errorf("expected nil for a missing record, got %+v", rec)
	}
}

func TestExistsCountStatsDelete(t *testing.T) {
	s := New(testutil.TempDB(t))

	_, err := s.Put("tasks", "tasks:1", json.RawMessage(`{"id":"t1"}`))
	testutil.AssertNoError(t, err)
	_, err = s.Put("tasks", "tasks:2", json.RawMessage(`{"id":"t2"}`))
	testutil.AssertNoError(t, err)
	_, err = s.Put("boards", "boards:main", json.RawMessage(`{"id":"b"}`))
	testutil.AssertNoError(t, err)

	ok, err := s.Exists("tasks", "tasks:1")
	testutil.AssertNoError(t, err)
	if !ok {
		t.Error("expected tasks:1 to exist")
	}
	ok, err = s.Exists("tasks", "tasks:9")
	testutil.AssertNoError(t, err)
	if ok {
		t.Error("expected tasks:9 to be absent")
	}

	count, err := s.Count()
	testutil.AssertNoError(t, err)
	if count != 3 {
		t.Errorf("expected 3 records, got %d", count)
	}

	stats, err := s.Stats()
	testutil.AssertNoError(t, err)
	if stats["tasks"] != 2 || stats["boards"] != 1 {
		t.Errorf("unexpected stats %v", stats)
	}

	testutil.AssertNoError(t, s.Delete("tasks", "tasks:1"))
	testutil.AssertNoError(t, s.Delete("tasks", "tasks:missing"))

	count, err = s.Count()
	testutil.AssertNoError(t, err)
	if count != 2 {
		t.Errorf("expected 2 records after delete, got %d", count)
	}
}

func TestPutPreservesPayloadBytes(t *testing.T) {
	s := New(testutil.TempDB(t))

	payload := `{"z": 1,  "a": "spacing kept"}`
	_, err := s.Put("tasks", "tasks:1", json.RawMessage(payload))
	testutil.AssertNoError(t, err)

	rec, err := s.Get("tasks", "tasks:1")
	testutil.AssertNoError(t, err)
	if string(rec.Payload) != payload {
		t.Errorf("payload bytes should be stored verbatim:\n got %s\nwant %s", rec.Payload, payload)
	}
}
