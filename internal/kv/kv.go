// internal/kv/kv.go
// Package kv is the abstract durable store: byte values under string keys, with
// get and set only. There are no transactions; the last writer wins.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/xkilldash9x/sendlater/internal/config"
	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store is closed")

// Store is a durable key-value store.
type Store interface {
	// Get returns the value under key. The boolean is false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("kv")
	switch cfg.Driver {
	case "memory":
		logger.Warn("Using the in-memory store; scheduled messages will not survive a restart.")
		return NewMemory(), nil
	case "sqlite", "":
		return OpenSQLite(ctx, cfg.SQLite.Path, logger)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		s, err := NewPostgres(ctx, pool, cfg.Postgres.Table, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s, err := NewRedis(ctx, client, cfg.Redis.Prefix, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
