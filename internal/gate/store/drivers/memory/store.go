// Package memory is an in-process store driver. Used when the gate runs
// without a database file and by component tests.
package memory

import (
	"context"
	"sync"

	"github.com/nanolos/gate/internal/gate/store"
)

type Store struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewStore() *Store {
	return &Store{data: map[string]map[string][]byte{}}
}

func (s *Store) Credentials() store.Bucket  { return &bucket{s: s, ns: "credentials"} }
func (s *Store) Sessions() store.Bucket     { return &bucket{s: s, ns: "sessions"} }
func (s *Store) Entitlements() store.Bucket { return &bucket{s: s, ns: "entitlements"} }
func (s *Store) Host() store.Bucket         { return &bucket{s: s, ns: "host"} }

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

type bucket struct {
	s  *Store
	ns string
}

func (b *bucket) Get(ctx context.Context, key string) ([]byte, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()

	value, ok := b.s.data[b.ns][key]
	if !ok {
		return nil, store.ErrNotFound
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (b *bucket) Set(ctx context.Context, key string, value []byte) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	if b.s.data[b.ns] == nil {
		b.s.data[b.ns] = map[string][]byte{}
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	b.s.data[b.ns][key] = stored
	return nil
}

func (b *bucket) Delete(ctx context.Context, key string) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	delete(b.s.data[b.ns], key)
	return nil
}
