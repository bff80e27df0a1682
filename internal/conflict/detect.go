// Package conflict classifies divergences between local and destination
// records and turns caller-chosen resolutions into concrete write operations.
package conflict

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"taskbridge/internal/domain"
)

// serverFields are destination-assigned and never by themselves constitute a
// conflict.
var serverFields = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"version":        true,
	"field_versions": true,
}

// Outcome classifies the relationship between a local record and its
// destination counterpart.
type Outcome int

const (
	// OutcomeNew means no destination counterpart exists; write directly.
	OutcomeNew Outcome = iota
	// OutcomeIdentical means the destination record is field-equal (or the
	// local record carries no information); counts as processed, no write.
	OutcomeIdentical
	// OutcomeConflict means the records share a key but diverge in at least
	// one comparable field.
	OutcomeConflict
)

// Detection is the result of comparing one local record against the
// destination.
type Detection struct {
	Outcome  Outcome
	Conflict *domain.DataConflict
}

// Detect compares a local record against the destination record for the same
// key. Comparison is field-level and excludes server-generated fields. When
// the local record is empty while the destination is populated, the
// destination is trusted and the pair classified identical.
func Detect(schema, key string, local json.RawMessage, remote *domain.Record) (Detection, error) {
	if remote == nil {
		return Detection{Outcome: OutcomeNew}, nil
	}

	localFields, err := decodeObject(local)
	if err != nil {
		return Detection{}, fmt.Errorf("local record %s/%s: %w", schema, key, err)
	}
	remoteFields, err := decodeObject(remote.Payload)
	if err != nil {
		return Detection{}, fmt.Errorf("remote record %s/%s: %w", schema, key, err)
	}

	localCmp := comparableFields(localFields)
	remoteCmp := comparableFields(remoteFields)

	diffs := diffFields(localCmp, remoteCmp)
	if len(diffs) == 0 {
		return Detection{Outcome: OutcomeIdentical}, nil
	}

	// Empty local state carries no information; trust the destination
	// rather than pausing over hydration noise.
	if allZero(localCmp) && !allZero(remoteCmp) {
		return Detection{Outcome: OutcomeIdentical}, nil
	}

	c := &domain.DataConflict{
		ID:          uuid.NewString(),
		Schema:      schema,
		Key:         key,
		LocalValue:  append(json.RawMessage(nil), local...),
		RemoteValue: append(json.RawMessage(nil), remote.Payload...),
	}
	c.Type, c.Field = classify(localCmp, remoteCmp, diffs)
	c.Suggestion = suggestion(c, local, remote.Payload)

	return Detection{Outcome: OutcomeConflict, Conflict: c}, nil
}

// decodeObject parses a record payload into its fields. Records are always
// JSON objects; anything else is a malformed record.
func decodeObject(data json.RawMessage) (map[string]interface{}, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("record is not a JSON object: %w", err)
	}
	return fields, nil
}

func comparableFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for name, value := range fields {
		if serverFields[name] {
			continue
		}
		out[name] = value
	}
	return out
}

// diffFields returns the sorted names of comparable fields that differ
// between the two records, including fields present on only one side.
func diffFields(local, remote map[string]interface{}) []string {
	names := make(map[string]bool)
	for name := range local {
		names[name] = true
	}
	for name := range remote {
		names[name] = true
	}

	var diffs []string
	for name := range names {
		lv, lok := local[name]
		rv, rok := remote[name]
		if lok != rok || !jsonEqual(lv, rv) {
			diffs = append(diffs, name)
		}
	}
	sort.Strings(diffs)
	return diffs
}

func classify(local, remote map[string]interface{}, diffs []string) (domain.ConflictType, string) {
	// A type disagreement on a shared field means the two sides hold
	// structurally different data.
	for _, name := range diffs {
		lv, lok := local[name]
		rv, rok := remote[name]
		if lok && rok && lv != nil && rv != nil && jsonType(lv) != jsonType(rv) {
			return domain.ConflictSchemaMismatch, name
		}
	}

	// Differing embedded identity means two distinct entities collided on
	// the same key.
	if lid, ok := local["id"]; ok {
		if rid, ok := remote["id"]; ok && !jsonEqual(lid, rid) {
			return domain.ConflictDuplicateKey, "id"
		}
	}

	// When every shared comparable field differs, the records are likely
	// unrelated entities; suggest a rename.
	shared := 0
	sharedDiffer := 0
	for name := range local {
		if _, ok := remote[name]; ok {
			shared++
			if !jsonEqual(local[name], remote[name]) {
				sharedDiffer++
			}
		}
	}
	if shared > 0 && shared == sharedDiffer {
		return domain.ConflictRenameRequired, ""
	}

	return domain.ConflictValueDiverge, diffs[0]
}

func suggestion(c *domain.DataConflict, local, remote json.RawMessage) string {
	var hint string
	switch c.Type {
	case domain.ConflictDuplicateKey:
		hint = "local and remote records carry different identities; rename keeps both, overwrite keeps local"
	case domain.ConflictSchemaMismatch:
		hint = fmt.Sprintf("field %q has a different type locally than remotely; overwrite replaces the remote shape", c.Field)
	case domain.ConflictRenameRequired:
		hint = "records appear to be distinct entities sharing a key; rename writes the local record under a new key"
	default:
		hint = "merge keeps the newer value per field; overwrite discards remote edits"
	}

	diff, err := unifiedDiff(remote, local)
	if err != nil || diff == "" {
		return hint
	}
	return hint + "\n" + diff
}

// unifiedDiff renders a remote→local diff over indented JSON.
func unifiedDiff(remote, local json.RawMessage) (string, error) {
	pretty := func(data json.RawMessage) (string, error) {
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return "", err
		}
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out) + "\n", nil
	}

	remoteStr, err := pretty(remote)
	if err != nil {
		return "", err
	}
	localStr, err := pretty(local)
	if err != nil {
		return "", err
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(remoteStr),
		B:        difflib.SplitLines(localStr),
		FromFile: "remote",
		ToFile:   "local",
		Context:  2,
	})
}

// allZero reports whether every field holds a zero value (or there are no
// fields at all).
func allZero(fields map[string]interface{}) bool {
	for _, value := range fields {
		if !isZero(value) {
			return false
		}
	}
	return true
}

func isZero(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case float64:
		return x == 0
	case []interface{}:
		return len(x) == 0
	case map[string]interface{}:
		return len(x) == 0
	default:
		return false
	}
}

func jsonType(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case float64:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return "unknown"
	}
}

// jsonEqual compares decoded JSON values by re-encoding, which normalizes
// map key order.
func jsonEqual(a, b interface{}) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}
