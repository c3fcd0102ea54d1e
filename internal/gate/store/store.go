// Package store defines the gate's persistent key-value contract. Each core
// component owns a disjoint bucket and never touches another component's
// keys; cross-component data only flows through public method calls.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("store: not found")

// Bucket is a namespaced key-value view. Values are opaque bytes; callers
// decide on encoding (JSON, sealed blobs).
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store is the root data access interface. Concrete drivers (sqlite, memory)
// implement this. Buckets are fixed at one per core component so a component
// cannot accidentally read another's key format.
type Store interface {
	// Credentials holds the sealed cached credential.
	Credentials() Bucket

	// Sessions holds the cached session snapshot.
	Sessions() Bucket

	// Entitlements holds the cached entitlement and source document.
	Entitlements() Bucket

	// Host holds relayed host-page storage snapshots, keyed by the host
	// storage key names.
	Host() Bucket

	Ping(ctx context.Context) error
	Close() error
}
