package conflict

import (
	"encoding/json"
	"fmt"

	"taskbridge/internal/domain"
)

// OpKind is the kind of write operation a resolution produces.
type OpKind int

const (
	// OpNone discards the local record and leaves the destination unchanged.
	OpNone OpKind = iota
	// OpPut writes Payload under (Schema, Key).
	OpPut
)

// WriteOp is the concrete operation produced by resolving one conflict.
type WriteOp struct {
	Kind    OpKind
	Schema  string
	Key     string
	Payload json.RawMessage
}

// KeyExistsFunc reports whether a destination key is taken; used to derive a
// free key for rename resolutions.
type KeyExistsFunc func(schema, key string) (bool, error)

// Resolve turns a resolution strategy into a write operation for the given
// conflict. remote is the current destination record (may be nil if it was
// deleted since detection). Resolve never mutates destination state itself.
func Resolve(c *domain.DataConflict, resolution domain.Resolution, remote *domain.Record, keyExists KeyExistsFunc) (*WriteOp, error) {
	switch resolution {
	case domain.ResolutionSkip:
		return &WriteOp{Kind: OpNone, Schema: c.Schema, Key: c.Key}, nil

	case domain.ResolutionOverwrite:
		return &WriteOp{
			Kind:    OpPut,
			Schema:  c.Schema,
			Key:     c.Key,
			Payload: append(json.RawMessage(nil), c.LocalValue...),
		}, nil

	case domain.ResolutionMerge:
		merged, err := merge(c, remote)
		if err != nil {
			return nil, err
		}
		return &WriteOp{Kind: OpPut, Schema: c.Schema, Key: c.Key, Payload: merged}, nil

	case domain.ResolutionRename:
		newKey, err := deriveKey(c.Schema, c.Key, keyExists)
		if err != nil {
			return nil, err
		}
		return &WriteOp{
			Kind:    OpPut,
			Schema:  c.Schema,
			Key:     newKey,
			Payload: append(json.RawMessage(nil), c.LocalValue...),
		}, nil

	default:
		return nil, fmt.Errorf("invalid resolution %q for conflict %s", resolution, c.ID)
	}
}

// merge combines local and remote field-by-field. For each differing field
// the local value wins unless the destination modified that field after the
// local snapshot was taken, judged by the monotonic version counter: the
// local payload's "version" field records the destination version observed
// when the client cached the record (0 if never synced).
func merge(c *domain.DataConflict, remote *domain.Record) (json.RawMessage, error) {
	localFields, err := decodeObject(c.LocalValue)
	if err != nil {
		return nil, fmt.Errorf("merge %s/%s: %w", c.Schema, c.Key, err)
	}

	if remote == nil {
		// Destination record vanished since detection; nothing to merge
		// against.
		return append(json.RawMessage(nil), c.LocalValue...), nil
	}

	remoteFields, err := decodeObject(remote.Payload)
	if err != nil {
		return nil, fmt.Errorf("merge %s/%s: %w", c.Schema, c.Key, err)
	}

	snapshotVersion := localSnapshotVersion(localFields)

	merged := make(map[string]interface{}, len(localFields)+len(remoteFields))
	for name, value := range remoteFields {
		if serverFields[name] {
			continue
		}
		merged[name] = value
	}
	for name, value := range localFields {
		if serverFields[name] {
			continue
		}
		rv, ok := merged[name]
		if !ok || jsonEqual(rv, value) {
			merged[name] = value
			continue
		}
		// Field-level last-writer-wins: remote keeps the field only when it
		// was modified after the local snapshot.
		if remote.FieldVersions[name] > snapshotVersion {
			continue
		}
		merged[name] = value
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged record: %w", err)
	}
	return out, nil
}

// localSnapshotVersion extracts the destination version the client observed
// when it cached the record. A record never synced from the destination has
// no version field and reports 0.
func localSnapshotVersion(fields map[string]interface{}) int64 {
	v, ok := fields["version"]
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int64(f)
}

// deriveKey finds the first free "-migrated" suffixed key for a rename.
func deriveKey(schema, key string, keyExists KeyExistsFunc) (string, error) {
	if keyExists == nil {
		return key + "-migrated", nil
	}

	candidate := key + "-migrated"
	for n := 2; ; n++ {
		taken, err := keyExists(schema, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to derive key for %s: %w", key, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-migrated-%d", key, n)
	}
}
