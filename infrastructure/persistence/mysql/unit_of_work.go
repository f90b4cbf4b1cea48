package mysql

import (
	"context"
	"fmt"

	"paytx/domain/shared"
	"paytx/infrastructure/persistence"
	"paytx/infrastructure/persistence/retry"

	"gorm.io/gorm"
)

// UnitOfWork runs repository writes inside one database transaction.
// Transient failures (deadlocks, lock wait timeouts) are retried with backoff;
// version conflicts and duplicate keys are returned immediately.
type UnitOfWork struct {
	db          *gorm.DB
	retryConfig retry.Config
}

var _ shared.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork creates a new UnitOfWork instance
func NewUnitOfWork(db *gorm.DB, retryConfig retry.Config) *UnitOfWork {
	return &UnitOfWork{db: db, retryConfig: retryConfig}
}

// Execute runs fn in a transaction.
// It:
// 1. Joins the transaction already in ctx, if any, without retrying
// 2. Otherwise begins a transaction and injects it into ctx for repositories
// 3. Commits on success, rolls back on error
// 4. Retries the whole attempt on retryable errors
func (u *UnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if persistence.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	executeOnce := func(ctx context.Context) error {
		tx := u.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("failed to begin transaction: %w", tx.Error)
		}

		if err := fn(persistence.ContextWithTx(ctx, tx)); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit().Error; err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}

	return retry.ExecuteWithRetry(ctx, u.retryConfig, executeOnce)
}
