package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/nanolos/gate/internal/gate/store"

	_ "modernc.org/sqlite"
)

// Bucket namespaces. One per core component, see store.Store.
const (
	nsCredentials  = "credentials"
	nsSessions     = "sessions"
	nsEntitlements = "entitlements"
	nsHost         = "host"
)

type Store struct {
	db  *sql.DB
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Single writer; the gate is a local agent, not a server fleet.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Credentials() store.Bucket  { return &bucket{db: s.db, ns: nsCredentials} }
func (s *Store) Sessions() store.Bucket     { return &bucket{db: s.db, ns: nsSessions} }
func (s *Store) Entitlements() store.Bucket { return &bucket{db: s.db, ns: nsEntitlements} }
func (s *Store) Host() store.Bucket         { return &bucket{db: s.db, ns: nsHost} }

type bucket struct {
	db *sql.DB
	ns string
}

func (b *bucket) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE ns = ? AND key = ?`, b.ns, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *bucket) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO kv (ns, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (ns, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		b.ns, key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (b *bucket) Delete(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM kv WHERE ns = ? AND key = ?`, b.ns, key)
	return err
}
