package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"custody-service/internal/domain"
	"custody-service/internal/xerrors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type TransactionRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewTransactionRepository(pool *pgxpool.Pool, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{
		pool:   pool,
		logger: logger,
	}
}

// CreateRequest persists the request, its approver rows and the placeholder
// response in a single database transaction. Either all of it becomes
// visible or none of it does.
func (r *TransactionRepository) CreateRequest(
	ctx context.Context,
	request *domain.TransactionRequest,
	approvers []*domain.Approver,
) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ledgerFieldsJSON, err := json.Marshal(request.LedgerFields)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger fields: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO transaction_requests (
			id, tenant_id, chain, source_account_id, dest_account_id,
			payment_channel_account_id, amount, asset_code, asset_issuer,
			memo, ledger_fields
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`,
		request.ID,
		request.TenantID,
		request.Chain,
		request.SourceAccountID,
		request.DestAccountID,
		request.PaymentChannelAccount,
		request.Amount,
		request.AssetCode,
		request.AssetIssuer,
		request.Memo,
		ledgerFieldsJSON,
	).Scan(&request.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction request: %w", err)
	}

	for _, approver := range approvers {
		err = tx.QueryRow(ctx, `
			INSERT INTO transaction_request_approvers (
				request_id, account_id, method, status, challenge_id
			) VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at
		`,
			request.ID,
			approver.AccountID,
			approver.Method,
			approver.Status,
			approver.ChallengeID,
		).Scan(&approver.ID, &approver.CreatedAt, &approver.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert approver: %w", err)
		}
		approver.RequestID = request.ID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transaction_responses (request_id) VALUES ($1)
	`, request.ID)
	if err != nil {
		return fmt.Errorf("failed to insert placeholder response: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction request: %w", err)
	}

	r.logger.Info("transaction request created",
		zap.String("request_id", request.ID.String()),
		zap.String("tenant_id", request.TenantID),
		zap.String("chain", string(request.Chain)),
		zap.Int("approvers", len(approvers)))

	return nil
}

func (r *TransactionRepository) GetRequest(ctx context.Context, tenantID string, id uuid.UUID) (*domain.TransactionRequest, error) {
	request := &domain.TransactionRequest{}
	var ledgerFieldsJSON []byte

	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, chain, source_account_id, dest_account_id,
		       payment_channel_account_id, amount, asset_code, asset_issuer,
		       memo, ledger_fields, created_at
		FROM transaction_requests
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(
		&request.ID,
		&request.TenantID,
		&request.Chain,
		&request.SourceAccountID,
		&request.DestAccountID,
		&request.PaymentChannelAccount,
		&request.Amount,
		&request.AssetCode,
		&request.AssetIssuer,
		&request.Memo,
		&ledgerFieldsJSON,
		&request.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction request: %w", err)
	}

	if len(ledgerFieldsJSON) > 0 {
		if err := json.Unmarshal(ledgerFieldsJSON, &request.LedgerFields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger fields: %w", err)
		}
	}

	return request, nil
}

func (r *TransactionRepository) GetApprovers(ctx context.Context, requestID uuid.UUID) ([]*domain.Approver, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, request_id, account_id, method, status, challenge_id,
		       created_at, updated_at
		FROM transaction_request_approvers
		WHERE request_id = $1
		ORDER BY id
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvers: %w", err)
	}
	defer rows.Close()

	var approvers []*domain.Approver
	for rows.Next() {
		approver := &domain.Approver{}
		err := rows.Scan(
			&approver.ID,
			&approver.RequestID,
			&approver.AccountID,
			&approver.Method,
			&approver.Status,
			&approver.ChallengeID,
			&approver.CreatedAt,
			&approver.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approver: %w", err)
		}
		approvers = append(approvers, approver)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approvers: %w", err)
	}

	return approvers, nil
}

func (r *TransactionRepository) GetResponse(ctx context.Context, requestID uuid.UUID) (*domain.TransactionResponse, error) {
	response := &domain.TransactionResponse{}

	err := r.pool.QueryRow(ctx, `
		SELECT request_id, submission_claimed, signed_payload, transaction_hash,
		       success, result_payload, submitted_at, created_at
		FROM transaction_responses
		WHERE request_id = $1
	`, requestID).Scan(
		&response.RequestID,
		&response.SubmissionClaimed,
		&response.SignedPayload,
		&response.TransactionHash,
		&response.Success,
		&response.ResultPayload,
		&response.SubmittedAt,
		&response.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction response: %w", err)
	}

	return response, nil
}

// ApplyChallengeDecision moves the approver owning the challenge out of
// PENDING. The status guard in the WHERE clause makes approver status
// monotonic: a terminal row is never rewritten, and two racing deliveries of
// the same decision resolve to a single write.
func (r *TransactionRepository) ApplyChallengeDecision(
	ctx context.Context,
	tenantID string,
	challengeID string,
	status domain.ApproverStatus,
) (uuid.UUID, error) {
	var requestID uuid.UUID

	err := r.pool.QueryRow(ctx, `
		UPDATE transaction_request_approvers a
		SET status = $3, updated_at = NOW()
		FROM transaction_requests tr
		WHERE a.request_id = tr.id
		  AND tr.tenant_id = $1
		  AND a.challenge_id = $2
		  AND a.status = 'PENDING'
		RETURNING a.request_id
	`, tenantID, challengeID, status).Scan(&requestID)

	if errors.Is(err, pgx.ErrNoRows) {
		var current domain.ApproverStatus
		lookupErr := r.pool.QueryRow(ctx, `
			SELECT a.status
			FROM transaction_request_approvers a
			JOIN transaction_requests tr ON a.request_id = tr.id
			WHERE tr.tenant_id = $1 AND a.challenge_id = $2
		`, tenantID, challengeID).Scan(&current)
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return uuid.Nil, xerrors.ErrChallengeNotFound
		}
		if lookupErr != nil {
			return uuid.Nil, fmt.Errorf("failed to look up challenge: %w", lookupErr)
		}
		return uuid.Nil, xerrors.ErrApproverFinalized
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to apply challenge decision: %w", err)
	}

	r.logger.Info("approver decision applied",
		zap.String("request_id", requestID.String()),
		zap.String("challenge_id", challengeID),
		zap.String("status", string(status)))

	return requestID, nil
}

// ClaimSubmission flips submission_claimed from false to true. Exactly one
// caller per request ever gets true back; everyone else observes an already
// claimed row and must not sign or submit.
func (r *TransactionRepository) ClaimSubmission(ctx context.Context, requestID uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE transaction_responses
		SET submission_claimed = TRUE
		WHERE request_id = $1 AND submission_claimed = FALSE
	`, requestID)
	if err != nil {
		return false, fmt.Errorf("failed to claim submission: %w", err)
	}

	claimed := result.RowsAffected() == 1
	if claimed {
		r.logger.Info("submission claimed", zap.String("request_id", requestID.String()))
	}

	return claimed, nil
}

// RecordSubmissionResult is the single allowed write to a response row after
// creation. The transaction_hash IS NULL guard keeps a recorded hash from
// ever being overwritten.
func (r *TransactionRepository) RecordSubmissionResult(ctx context.Context, response *domain.TransactionResponse) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE transaction_responses
		SET signed_payload = $2,
		    transaction_hash = $3,
		    success = $4,
		    result_payload = $5,
		    submitted_at = $6
		WHERE request_id = $1
		  AND submission_claimed = TRUE
		  AND transaction_hash IS NULL
	`,
		response.RequestID,
		response.SignedPayload,
		response.TransactionHash,
		response.Success,
		response.ResultPayload,
		response.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record submission result: %w", err)
	}

	if result.RowsAffected() == 0 {
		return xerrors.ErrAlreadySubmitted
	}

	r.logger.Info("submission result recorded",
		zap.String("request_id", response.RequestID.String()),
		zap.Boolp("success", response.Success))

	return nil
}

// ExpirePendingApprovers times out approver rows that have sat in PENDING
// since before the cutoff. TIMED_OUT is terminal; remediation is an
// operational concern, not this service's.
func (r *TransactionRepository) ExpirePendingApprovers(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE transaction_request_approvers
		SET status = 'TIMED_OUT', updated_at = NOW()
		WHERE status = 'PENDING' AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending approvers: %w", err)
	}

	expired := result.RowsAffected()
	if expired > 0 {
		r.logger.Info("pending approvers expired",
			zap.Int64("count", expired),
			zap.Time("cutoff", cutoff))
	}

	return expired, nil
}
