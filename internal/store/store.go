package store

import (
	"context"
	_ "embed"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IMPORTANT:
// All job state transitions MUST go through transitionJobState.
// Any direct UPDATE of jobs.state outside this gate is a correctness bug.

//go:embed schema.sql
var schemaSQL string

type Store struct {
	connectionPool *pgxpool.Pool
}

func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Store{connectionPool: pool}, nil
}

func (s *Store) Close() {
	s.connectionPool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.connectionPool.Ping(ctx)
}

// EnsureSchema creates the tables the overseer needs if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.connectionPool.Exec(ctx, schemaSQL)
	return err
}
