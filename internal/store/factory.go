package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/db"
)

// New creates a VersionStore based on the configured storage type.
//
// For sqlite storage it opens the configured database file. For database
// storage it opens a PostgreSQL pool that is closed together with the store.
func New(ctx context.Context, cfg *config.Config) (VersionStore, error) {
	switch cfg.Storage.GetType() {
	case config.StorageTypeDatabase:
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return &pooledStore{VersionStore: NewPostgresStore(pool), pool: pool}, nil
	case config.StorageTypeMemory:
		return NewMemoryStore(), nil
	case config.StorageTypeSQLite:
		return NewSQLiteStore(ctx, cfg.Storage.SQLite.GetPath())
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// pooledStore owns the pool behind a postgres store.
type pooledStore struct {
	VersionStore
	pool *pgxpool.Pool
}

func (s *pooledStore) Close() error {
	s.pool.Close()
	return nil
}
