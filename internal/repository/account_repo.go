package repository

import (
	"context"
	"errors"
	"fmt"

	"custody-service/internal/domain"
	"custody-service/internal/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type AccountRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewAccountRepository(pool *pgxpool.Pool, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{
		pool:   pool,
		logger: logger,
	}
}

// Resolve maps a caller-supplied identifier to the tenant's account record.
func (r *AccountRepository) Resolve(ctx context.Context, tenantID, identifier string) (*domain.Account, error) {
	account := &domain.Account{}

	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, identifier, approval_method,
		       COALESCE(mfa_device_id, ''), created_at
		FROM accounts
		WHERE tenant_id = $1 AND identifier = $2
	`, tenantID, identifier).Scan(
		&account.ID,
		&account.TenantID,
		&account.Identifier,
		&account.ApprovalMethod,
		&account.MfaDeviceID,
		&account.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %q: %w", identifier, xerrors.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, tenantID string, id int64) (*domain.Account, error) {
	account := &domain.Account{}

	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, identifier, approval_method,
		       COALESCE(mfa_device_id, ''), created_at
		FROM accounts
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(
		&account.ID,
		&account.TenantID,
		&account.Identifier,
		&account.ApprovalMethod,
		&account.MfaDeviceID,
		&account.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}
