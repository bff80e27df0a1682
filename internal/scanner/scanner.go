// Package scanner enumerates the client-side store and classifies keys
// against the registered schemas. Scanning is a pure read.
package scanner

import (
	"sort"
	"strings"

	"taskbridge/internal/domain"
	"taskbridge/internal/localstore"
)

// Registry holds the set of schema names the engine knows how to migrate.
// Keys outside the registry are counted but never touched.
type Registry struct {
	schemas map[string]bool
}

// NewRegistry creates a registry from schema names. Invalid names are
// rejected by Validate; construction itself accepts anything.
func NewRegistry(names []string) *Registry {
	schemas := make(map[string]bool, len(names))
	for _, name := range names {
		schemas[name] = true
	}
	return &Registry{schemas: schemas}
}

// Validate checks every registered schema name.
func (r *Registry) Validate() error {
	for _, name := range r.Names() {
		if err := domain.ValidateSchemaName(name); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the registered schema names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether a schema name is registered.
func (r *Registry) Known(schema string) bool {
	return r.schemas[schema]
}

// Classify maps a store key to its schema. A key is known when it equals a
// schema name or is prefixed with "<schema>:".
func (r *Registry) Classify(key string) (string, bool) {
	if r.schemas[key] {
		return key, true
	}
	if i := strings.Index(key, ":"); i > 0 {
		schema := key[:i]
		if r.schemas[schema] {
			return schema, true
		}
	}
	return "", false
}

// Scan enumerates the store and computes the inventory. Unknown keys are
// never read; they appear only in the aggregate counts.
func Scan(st localstore.Store, reg *Registry) (*domain.Inventory, error) {
	keys, err := st.Keys()
	if err != nil {
		return nil, err
	}

	inv := &domain.Inventory{
		KeySizes: make(map[string]int64),
	}

	for _, key := range keys {
		inv.TotalKeys++
		if _, known := reg.Classify(key); !known {
			inv.UnknownKeys++
			continue
		}

		value, err := st.Get(key)
		if err != nil {
			return nil, err
		}
		inv.KnownKeys++
		size := int64(len(value))
		inv.KeySizes[key] = size
		inv.TotalSize += size
	}

	return inv, nil
}
