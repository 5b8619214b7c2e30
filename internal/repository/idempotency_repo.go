package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type IdempotencyRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewIdempotencyRepository(pool *pgxpool.Pool, logger *zap.Logger) *IdempotencyRepository {
	return &IdempotencyRepository{
		pool:   pool,
		logger: logger,
	}
}

// Reserve atomically records the (key, source account) pair. The unique
// constraint does the deduplication: two concurrent calls with the same pair
// cannot both see "not present", which a check-then-insert would allow.
func (r *IdempotencyRepository) Reserve(ctx context.Context, tenantID, key string, sourceAccountID int64) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (tenant_id, idem_key, source_account_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, idem_key, source_account_id) DO NOTHING
	`, tenantID, key, sourceAccountID)
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}

	reserved := result.RowsAffected() == 1
	if !reserved {
		r.logger.Warn("duplicate idempotency key rejected",
			zap.String("tenant_id", tenantID),
			zap.Int64("source_account_id", sourceAccountID))
	}

	return reserved, nil
}
