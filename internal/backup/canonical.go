package backup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON produces a deterministic JSON encoding of a snapshot:
// map keys sorted lexicographically, no insignificant whitespace, no HTML
// escaping. Record values are carried as JSON strings, so the captured bytes
// survive the round trip unchanged.
func CanonicalJSON(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	// Remove trailing newline added by Encode
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}

	return result, nil
}

// ComputeSnapshotRev computes the sha256 hash of canonical JSON bytes.
// Returns "sha256:<hex>" format.
func ComputeSnapshotRev(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
