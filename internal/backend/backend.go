// Package backend opens the job store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vin-jex/job-overseer/internal/api"
	"github.com/vin-jex/job-overseer/internal/config"
	"github.com/vin-jex/job-overseer/internal/liveness"
	"github.com/vin-jex/job-overseer/internal/redisstore"
	"github.com/vin-jex/job-overseer/internal/store"
	"github.com/vin-jex/job-overseer/internal/worker"
)

// Backend is everything the worker and monitor processes need from a store.
type Backend interface {
	liveness.Store
	worker.JobSource
	api.Pinger
	Close()
}

var (
	_ Backend = (*store.Store)(nil)
	_ Backend = redisBackend{}
)

type redisBackend struct {
	*redisstore.Store
	logger *slog.Logger
}

func (b redisBackend) Close() {
	if err := b.Store.Close(); err != nil {
		b.logger.Warn("closing redis client", "err", err)
	}
}

func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		s, err := store.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return s, nil

	case config.BackendRedis:
		s, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return redisBackend{Store: s, logger: logger}, nil
	}

	return nil, fmt.Errorf("unknown store backend %q: %w", cfg.StoreBackend, config.ErrInvalidConfig)
}
