package registry

import (
	"context"
	"sync"

	"github.com/MrWong99/quillmate/pkg/types"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. Registries
// are lost on restart. The zero value is ready to use.
type MemStore struct {
	mu      sync.RWMutex
	authors map[string][]types.TrackedName
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{authors: make(map[string][]types.TrackedName)}
}

// Load implements [Store.Load].
func (s *MemStore) Load(_ context.Context, authorID string) ([]types.TrackedName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Clone(s.authors[authorID]), nil
}

// Save implements [Store.Save].
func (s *MemStore) Save(_ context.Context, authorID string, names []types.TrackedName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authors == nil {
		s.authors = make(map[string][]types.TrackedName)
	}
	s.authors[authorID] = Clone(names)
	return nil
}

// Ping implements [Store.Ping]. It always succeeds.
func (s *MemStore) Ping(context.Context) error { return nil }
