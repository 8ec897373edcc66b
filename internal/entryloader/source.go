// Package entryloader reads entries from an entry store and exposes them to
// resolvers through a request-scoped Loader.
package entryloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"cms-graphql/internal/entry"
)

// ErrNotFound is returned when an entry id is unknown to the store.
var ErrNotFound = errors.New("entry not found")

// Source is an entry store.
type Source interface {
	// EntriesByContentType returns every entry of the content type, oldest first.
	EntriesByContentType(ctx context.Context, contentTypeID string) ([]entry.Entry, error)
	// Assets returns every asset, oldest first.
	Assets(ctx context.Context) ([]entry.Entry, error)
	// EntryByID returns a single entry or asset, or ErrNotFound.
	EntryByID(ctx context.Context, id string) (entry.Entry, error)
}

// MemorySource serves entries held in memory. It backs the file store and tests.
type MemorySource struct {
	mu      sync.RWMutex
	entries []entry.Entry
}

// NewMemorySource creates a source over entries, kept in the given order.
func NewMemorySource(entries ...entry.Entry) *MemorySource {
	return &MemorySource{entries: slices.Clone(entries)}
}

// LoadFile reads a JSON array of entries.
func LoadFile(path string) (*MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries file %q: %w", path, err)
	}
	var entries []entry.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode entries file %q: %w", path, err)
	}
	for i := range entries {
		if entries[i].Sys.Type == "" {
			entries[i].Sys.Type = entry.TypeEntry
		}
	}
	return NewMemorySource(entries...), nil
}

// Add appends entries.
func (m *MemorySource) Add(entries ...entry.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
}

// All returns a copy of every stored entry and asset.
func (m *MemorySource) All() []entry.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entries)
}

func (m *MemorySource) EntriesByContentType(ctx context.Context, contentTypeID string) ([]entry.Entry, error) {
	return m.filter(ctx, func(e entry.Entry) bool {
		return e.Sys.Type != entry.TypeAsset && e.Sys.ContentTypeID == contentTypeID
	})
}

func (m *MemorySource) Assets(ctx context.Context) ([]entry.Entry, error) {
	return m.filter(ctx, func(e entry.Entry) bool {
		return e.Sys.Type == entry.TypeAsset
	})
}

func (m *MemorySource) EntryByID(ctx context.Context, id string) (entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return entry.Entry{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.Sys.ID == id {
			return e, nil
		}
	}
	return entry.Entry{}, ErrNotFound
}

func (m *MemorySource) filter(ctx context.Context, keep func(entry.Entry) bool) ([]entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entry.Entry, 0)
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
