// Package store persists transcript segments and saved notes per conversation.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/maastricht-university/harmon/config"
	"github.com/maastricht-university/harmon/types/interfaces"
)

// New opens the configured backend and checks it is reachable.
func New(ctx context.Context, cfg config.Store) (interfaces.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemory(), nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedis(rdb), nil
	case config.BackendSQLite, config.BackendPostgres:
		var dial gorm.Dialector
		if cfg.Backend == config.BackendSQLite {
			dial = sqlite.Open(cfg.DSN)
		} else {
			dial = postgres.Open(cfg.DSN)
		}
		db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Backend, err)
		}
		return NewSQL(ctx, db)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
