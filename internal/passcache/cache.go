// Package passcache is a content-addressed store for pass results. Keys are
// a pure function of the pass inputs, so concurrent writers computing the
// same key produce identical entries and repeated work short-circuits.
package passcache

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/precon-cli/internal/model"
)

// Entry is one stored pass result together with the inputs that produced
// it. Entries are immutable once stored; the cache is append-only.
type Entry struct {
	Key      string           `json:"key"`
	Inputs   KeyInputs        `json:"inputs"`
	Result   model.PassResult `json:"result"`
	StoredAt time.Time        `json:"stored_at"`
}

// Cache is the shared pass cache. Load returns (nil, nil) on a miss. Store
// is append-only: writing an existing key keeps the first entry, which is
// safe because content is deterministic per key.
type Cache interface {
	Load(ctx context.Context, key string) (*Entry, error)
	Store(ctx context.Context, entry Entry) error
	Close() error
}

// Memory is an in-process Cache safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Load(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[key]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *Memory) Store(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.Key]; ok {
		return nil
	}
	m.entries[entry.Key] = entry
	return nil
}

func (m *Memory) Close() error {
	return nil
}
