// Package localstore provides the client-side key/value store boundary that
// the migration engine reads from and that backups restore into.
package localstore

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"taskbridge/internal/domain"
)

// ErrKeyNotFound is returned by Get for a key that does not exist.
var ErrKeyNotFound = errors.New("key not found")

// Store is a flat key/value store of JSON-encoded records.
type Store interface {
	// Keys returns all keys in lexicographic order.
	Keys() ([]string, error)
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// DirStore stores each key as a file under a directory, with the key
// percent-encoded into the filename. This is the durable representation of a
// user's client-side cache on the server host.
type DirStore struct {
	dir string
}

// NewDirStore creates a DirStore rooted at dir. The directory is created on
// first write, not here, so that scanning a never-used store reports
// unavailability rather than silently creating state.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Dir returns the store's root directory.
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) keyPath(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key))
}

// Keys returns all keys in lexicographic order.
func (s *DirStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.StorageUnavailableError{Err: err}
		}
		return nil, &domain.StorageUnavailableError{Err: err}
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, err := url.PathUnescape(entry.Name())
		if err != nil {
			// Not a key file we wrote; leave it alone.
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *DirStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return nil, &domain.StorageUnavailableError{Err: err}
	}
	return data, nil
}

func (s *DirStore) Put(key string, value []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return &domain.StorageUnavailableError{Err: err}
	}
	if err := os.WriteFile(s.keyPath(key), value, 0644); err != nil {
		return &domain.StorageUnavailableError{Err: err}
	}
	return nil
}

func (s *DirStore) Delete(key string) error {
	if err := os.Remove(s.keyPath(key)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return &domain.StorageUnavailableError{Err: err}
	}
	return nil
}

// MemStore is an in-memory Store for tests. Setting Err makes every
// operation fail with a StorageUnavailableError wrapping it.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	Err error
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Keys() ([]string, error) {
	if s.Err != nil {
		return nil, &domain.StorageUnavailableError{Err: s.Err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemStore) Get(key string) ([]byte, error) {
	if s.Err != nil {
		return nil, &domain.StorageUnavailableError{Err: s.Err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *MemStore) Put(key string, value []byte) error {
	if s.Err != nil {
		return &domain.StorageUnavailableError{Err: s.Err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

func (s *MemStore) Delete(key string) error {
	if s.Err != nil {
		return &domain.StorageUnavailableError{Err: s.Err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	delete(s.data, key)
	return nil
}
