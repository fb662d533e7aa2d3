// File: internal/store/store.go
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when no live entry exists for an ID.
// Callers at the boundary translate it into a 404.
var ErrNotFound = errors.New("handle not found")

// Closer is the capability every stored object must expose so the table can
// release engine resources (sockets, browser contexts) when an entry is
// removed or the table is drained.
type Closer interface {
	Close() error
}

// Table is a concurrency-safe mapping from opaque string IDs to owned
// objects. The table is the sole owner of its entries: whoever registers an
// object hands over the responsibility for closing it.
//
// A single mutex guards only the map bookkeeping. Closing an object is
// always performed outside the critical section so a slow close (a hung
// socket, a browser teardown) cannot block unrelated lookups.
type Table[T Closer] struct {
	mu      sync.Mutex
	entries map[string]T
	kind    string
	log     *zap.Logger
}

// New creates an empty table. The kind string names the table in logs
// ("session", "response").
func New[T Closer](logger *zap.Logger, kind string) *Table[T] {
	return &Table[T]{
		entries: make(map[string]T),
		kind:    kind,
		log:     logger.Named(kind + "_store"),
	}
}

// Create registers a new object under a freshly generated ID and returns the
// ID. IDs are UUIDv4 and are never reused.
func (t *Table[T]) Create(value T) string {
	id := uuid.New().String()
	t.mu.Lock()
	t.entries[id] = value
	t.mu.Unlock()
	t.log.Debug("Handle registered.", zap.String("id", id))
	return id
}

// Get returns the live object for id, or ErrNotFound if the ID was never
// issued or has already been removed.
func (t *Table[T]) Get(id string) (T, error) {
	t.mu.Lock()
	value, ok := t.entries[id]
	t.mu.Unlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", t.kind, id, ErrNotFound)
	}
	return value, nil
}

// Remove pops the entry for id and releases its resources. An absent
// ID reports ErrNotFound so callers can distinguish a stale handle
// from a successful delete. The close itself happens after the lock is
// dropped, and its error is swallowed because the caller has no
// actionable recourse for a failed release.
func (t *Table[T]) Remove(id string) error {
	t.mu.Lock()
	value, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s %q: %w", t.kind, id, ErrNotFound)
	}
	if err := value.Close(); err != nil {
		t.log.Debug("Release failed during remove.", zap.String("id", id), zap.Error(err))
	}
	return nil
}

// Clear atomically drains every entry, then releases each owned object
// outside the lock. Safe on an empty table. Used at process shutdown.
func (t *Table[T]) Clear() {
	t.mu.Lock()
	drained := make([]T, 0, len(t.entries))
	for _, value := range t.entries {
		drained = append(drained, value)
	}
	t.entries = make(map[string]T)
	t.mu.Unlock()

	for _, value := range drained {
		if err := value.Close(); err != nil {
			t.log.Debug("Release failed during clear.", zap.Error(err))
		}
	}
	if len(drained) > 0 {
		t.log.Info("Store drained.", zap.Int("released", len(drained)))
	}
}

// Len reports the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
