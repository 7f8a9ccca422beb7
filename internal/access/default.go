package access

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/evesync/internal/database"
)

var (
	defaultRegistry *Registry
	defaultMu       sync.RWMutex
)

// Init installs r as the process-wide registry. Only the first call takes
// effect until Reset is called; it reports whether r was installed.
func Init(r *Registry) bool {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultRegistry != nil {
		return false
	}
	defaultRegistry = r
	return true
}

// Default returns the process-wide registry, falling back to the built-in
// default entries when Init has not been called.
func Default() *Registry {
	defaultMu.RLock()
	r := defaultRegistry
	defaultMu.RUnlock()
	if r != nil {
		return r
	}

	r, _ = NewRegistry(nil)
	return r
}

// Reset drops the process-wide registry.
// Primarily useful for testing.
func Reset() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = nil
}

// Load reads the capability table from the database. An empty table yields
// the default registry.
func Load(ctx context.Context, db *database.DB) (*Registry, error) {
	query, args, err := db.Dialect.Builder().
		Select("api", "section", "mask", "description").
		From("util_access_mask").
		OrderBy("section", "mask").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build access mask query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query access masks: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.API, &e.Section, &e.Mask, &e.Description); err != nil {
			return nil, fmt.Errorf("scan access mask: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read access masks: %w", err)
	}

	return NewRegistry(entries)
}

// LoadDefault loads the registry from db and installs it process-wide.
// A registry that is already installed is returned unchanged.
func LoadDefault(ctx context.Context, db *database.DB) (*Registry, error) {
	defaultMu.RLock()
	r := defaultRegistry
	defaultMu.RUnlock()
	if r != nil {
		return r, nil
	}

	r, err := Load(ctx, db)
	if err != nil {
		return nil, err
	}
	if !Init(r) {
		return Default(), nil
	}
	return r, nil
}
