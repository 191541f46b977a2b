package main

import (
	"context"

	"github.com/drkrodriguez/ISSS626-GAA/internal/store"
)

// initStore opens the configured backend and applies the schema. SQLite is
// the default so every command works without external services.
func initStore(ctx context.Context) (store.Store, error) {
	pool := &store.PoolConfig{
		MaxConns: int32(cfg.Store.MaxConns),
		MinConns: int32(cfg.Store.MinConns),
	}
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, pool)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
