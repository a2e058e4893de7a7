package app

import (
	"context"
	"fmt"

	"github.com/m3rciful/pairbot/chat"
	"github.com/m3rciful/pairbot/storage/memory"
	"github.com/m3rciful/pairbot/storage/postgres"
	"github.com/m3rciful/pairbot/storage/redis"
	"github.com/m3rciful/pairbot/storage/sqlite"
)

// OpenStore opens the store selected by cfg.Storage.Driver.
func OpenStore(ctx context.Context, cfg *Config) (chat.Store, error) {
	var (
		store chat.Store
		err   error
	)
	switch cfg.Storage.Driver {
	case DriverMemory, "":
		store = memory.New()
	case DriverPostgres:
		var s *postgres.Store
		if s, err = postgres.Open(ctx, cfg.Database); err == nil {
			store = s
		}
	case DriverRedis:
		var s *redis.Store
		s, err = redis.Open(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err == nil {
			store = s
		}
	case DriverSQLite:
		var s *sqlite.Store
		if s, err = sqlite.Open(cfg.SQLite.Path); err == nil {
			store = s
		}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	return store, nil
}
