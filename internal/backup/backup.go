package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"taskbridge/internal/domain"
	"taskbridge/internal/localstore"
	"taskbridge/internal/scanner"
)

const indexFile = "manifests.json"

// Manager owns one backup directory. Snapshot files are written once and
// never modified; the manifest index is append-only.
type Manager struct {
	dir string
}

// NewManager creates a Manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Create captures every known-schema record from the store into a new
// snapshot and returns its manifest. The manifest's counts are exact counts
// of what was captured.
func (m *Manager) Create(st localstore.Store, reg *scanner.Registry) (*domain.BackupManifest, error) {
	keys, err := st.Keys()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Meta: Meta{
			SchemaVersion: 1,
			ManifestID:    uuid.NewString(),
			CreatedAt:     FormatTimestamp(time.Now()),
		},
		Records: make(map[string]string),
	}

	schemas := make(map[string]bool)
	for _, key := range keys {
		schema, known := reg.Classify(key)
		if !known {
			continue
		}
		value, err := st.Get(key)
		if err != nil {
			return nil, err
		}
		snap.Records[key] = string(value)
		schemas[schema] = true
	}

	for _, name := range reg.Names() {
		if schemas[name] {
			snap.Meta.DataTypes = append(snap.Meta.DataTypes, name)
		}
	}

	data, err := CanonicalJSON(snap)
	if err != nil {
		return nil, err
	}

	// Compute the revision over bytes without the rev itself, then re-encode.
	snap.Meta.SnapshotRev = ComputeSnapshotRev(data)
	data, err = CanonicalJSON(snap)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	path := m.snapshotPath(snap.Meta.ManifestID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	createdAt, _ := time.Parse("2006-01-02T15:04:05Z", snap.Meta.CreatedAt)
	manifest := &domain.BackupManifest{
		ID:          snap.Meta.ManifestID,
		CreatedAt:   createdAt,
		TotalItems:  len(snap.Records),
		Size:        int64(len(data)),
		DataTypes:   snap.Meta.DataTypes,
		SnapshotRev: snap.Meta.SnapshotRev,
	}

	if err := m.appendManifest(manifest); err != nil {
		return nil, err
	}

	return manifest, nil
}

// List returns all manifests in creation order.
func (m *Manager) List() ([]domain.BackupManifest, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest index: %w", err)
	}

	var manifests []domain.BackupManifest
	if err := json.Unmarshal(data, &manifests); err != nil {
		return nil, fmt.Errorf("failed to parse manifest index: %w", err)
	}
	return manifests, nil
}

// Get returns the manifest with the given id.
func (m *Manager) Get(id string) (*domain.BackupManifest, error) {
	manifests, err := m.List()
	if err != nil {
		return nil, err
	}
	for i := range manifests {
		if manifests[i].ID == id {
			return &manifests[i], nil
		}
	}
	return nil, &domain.ManifestNotFoundError{ID: id}
}

// Load reads and parses the snapshot for a manifest id.
func (m *Manager) Load(id string) (*Snapshot, error) {
	data, err := os.ReadFile(m.snapshotPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.ManifestNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}

// Restore writes every captured record back into the store verbatim.
// Restoring twice produces the same resulting dataset; records are replaced
// by key, never duplicated.
func (m *Manager) Restore(id string, st localstore.Store) (*RestoreResult, error) {
	snap, err := m.Load(id)
	if err != nil {
		return nil, err
	}

	// Deterministic order, matching the index the scanner would produce.
	keys := make([]string, 0, len(snap.Records))
	for key := range snap.Records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := st.Put(key, []byte(snap.Records[key])); err != nil {
			return nil, fmt.Errorf("failed to restore %s: %w", key, err)
		}
	}

	return &RestoreResult{
		ManifestID:  id,
		SnapshotRev: snap.Meta.SnapshotRev,
		Restored:    len(keys),
	}, nil
}

func (m *Manager) snapshotPath(id string) string {
	return filepath.Join(m.dir, id+".json")
}

func (m *Manager) appendManifest(manifest *domain.BackupManifest) error {
	manifests, err := m.List()
	if err != nil {
		return err
	}
	manifests = append(manifests, *manifest)

	data, err := json.MarshalIndent(manifests, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, indexFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest index: %w", err)
	}
	return nil
}
