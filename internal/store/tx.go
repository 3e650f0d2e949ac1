package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type TransactionFunc func(transaction pgx.Tx) error

// WithTransaction runs fn in a read-committed transaction. fn's error is
// returned unwrapped so callers can match pgx.ErrNoRows and sentinel errors.
func (s *Store) WithTransaction(
	ctx context.Context,
	fn TransactionFunc,
) error {
	transaction, err := s.connectionPool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel: pgx.ReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() { _ = transaction.Rollback(ctx) }()

	if err := fn(transaction); err != nil {
		return err
	}

	if err := transaction.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
