package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"custody-service/internal/domain"
	"custody-service/internal/metrics"
	"custody-service/internal/xerrors"
	"custody-service/pkg/utils"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// TransactionStore is the durable home of requests, approvers and responses.
type TransactionStore interface {
	CreateRequest(ctx context.Context, request *domain.TransactionRequest, approvers []*domain.Approver) error
	GetRequest(ctx context.Context, tenantID string, id uuid.UUID) (*domain.TransactionRequest, error)
	GetApprovers(ctx context.Context, requestID uuid.UUID) ([]*domain.Approver, error)
	GetResponse(ctx context.Context, requestID uuid.UUID) (*domain.TransactionResponse, error)
	ApplyChallengeDecision(ctx context.Context, tenantID, challengeID string, status domain.ApproverStatus) (uuid.UUID, error)
	ClaimSubmission(ctx context.Context, requestID uuid.UUID) (bool, error)
	RecordSubmissionResult(ctx context.Context, response *domain.TransactionResponse) error
	ExpirePendingApprovers(ctx context.Context, cutoff time.Time) (int64, error)
}

// IdempotencyStore reserves a (client key, source account) pair exactly once.
type IdempotencyStore interface {
	Reserve(ctx context.Context, tenantID, key string, sourceAccountID int64) (bool, error)
}

// AccountDirectory resolves caller-supplied identifiers to account records.
type AccountDirectory interface {
	Resolve(ctx context.Context, tenantID, identifier string) (*domain.Account, error)
	GetByID(ctx context.Context, tenantID string, id int64) (*domain.Account, error)
}

// ChainRegistry hands out the adapter for a ledger tag.
type ChainRegistry interface {
	Get(name domain.ChainName) (domain.ChainAdapter, error)
}

type TransactionUsecase struct {
	store       TransactionStore
	idempotency IdempotencyStore
	accounts    AccountDirectory
	chains      ChainRegistry
	signer      domain.Signer
	mfa         domain.MfaProvider
	bus         domain.ApprovalEventBus
	logger      *zap.Logger
}

func NewTransactionUsecase(
	store TransactionStore,
	idempotency IdempotencyStore,
	accounts AccountDirectory,
	chains ChainRegistry,
	signer domain.Signer,
	mfa domain.MfaProvider,
	bus domain.ApprovalEventBus,
	logger *zap.Logger,
) *TransactionUsecase {
	return &TransactionUsecase{
		store:       store,
		idempotency: idempotency,
		accounts:    accounts,
		chains:      chains,
		signer:      signer,
		mfa:         mfa,
		bus:         bus,
		logger:      logger,
	}
}

// PaymentInput is a validated payment intent from the API layer.
type PaymentInput struct {
	Chain             domain.ChainName
	SourceIdentifier  string
	DestIdentifier    string
	PaymentChannel    string // optional fee-payer account identifier
	AdditionalSigners []string
	Amount            string
	AssetCode         *string
	AssetIssuer       *string
	Memo              *string
	LedgerFields      map[string]string
}

// CreatePayment turns a payment intent into a durable transaction request.
// The request, its approver rows and the placeholder response appear
// atomically or not at all; implicit approvers are auto-approved and an
// approval event is published for each so every request flows through the
// same completion path.
func (uc *TransactionUsecase) CreatePayment(
	ctx context.Context,
	tenantID string,
	idempotencyKey string,
	in *PaymentInput,
) (*domain.TransactionRequest, []*domain.Approver, error) {
	if _, err := uc.chains.Get(in.Chain); err != nil {
		return nil, nil, err
	}
	if err := utils.ValidateAmount(in.Amount); err != nil {
		return nil, nil, err
	}

	source, err := uc.accounts.Resolve(ctx, tenantID, in.SourceIdentifier)
	if err != nil {
		return nil, nil, err
	}
	dest, err := uc.accounts.Resolve(ctx, tenantID, in.DestIdentifier)
	if err != nil {
		return nil, nil, err
	}

	// Approval order: source first, then additional signers, then the
	// payment channel account.
	approverAccounts := []*domain.Account{source}
	for _, identifier := range in.AdditionalSigners {
		signerAccount, err := uc.accounts.Resolve(ctx, tenantID, identifier)
		if err != nil {
			return nil, nil, err
		}
		approverAccounts = append(approverAccounts, signerAccount)
	}

	var paymentChannelID *int64
	if in.PaymentChannel != "" {
		channel, err := uc.accounts.Resolve(ctx, tenantID, in.PaymentChannel)
		if err != nil {
			return nil, nil, err
		}
		paymentChannelID = &channel.ID
		approverAccounts = append(approverAccounts, channel)
	}

	reserved, err := uc.idempotency.Reserve(ctx, tenantID, idempotencyKey, source.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("idempotency reservation failed: %w", err)
	}
	if !reserved {
		metrics.CreateRejected.WithLabelValues("duplicate_key").Inc()
		return nil, nil, xerrors.ErrDuplicateIdempotencyKey
	}

	if err := uc.validateMfaApprovers(ctx, approverAccounts); err != nil {
		metrics.CreateRejected.WithLabelValues("mfa_setup").Inc()
		return nil, nil, err
	}

	request := &domain.TransactionRequest{
		ID:                    uuid.New(),
		TenantID:              tenantID,
		Chain:                 in.Chain,
		SourceAccountID:       source.ID,
		DestAccountID:         dest.ID,
		PaymentChannelAccount: paymentChannelID,
		Amount:                in.Amount,
		AssetCode:             in.AssetCode,
		AssetIssuer:           in.AssetIssuer,
		Memo:                  in.Memo,
		LedgerFields:          in.LedgerFields,
	}

	// Push challenges go out before anything is persisted. If persistence
	// fails afterwards the challenges dangle with no local state, which is
	// harmless; the reverse order would leave approver rows without
	// challenges.
	approvers, err := uc.dispatchApprovals(ctx, request, approverAccounts, dest)
	if err != nil {
		return nil, nil, err
	}

	if err := uc.store.CreateRequest(ctx, request, approvers); err != nil {
		return nil, nil, err
	}

	// Implicit approvers were persisted already approved; emit their events
	// now that the rows are visible to the completion workers.
	for _, approver := range approvers {
		if approver.Method != domain.ApprovalMethodImplicit {
			continue
		}
		event := domain.ApprovalEvent{TenantID: tenantID, RequestID: request.ID.String()}
		if err := uc.bus.PublishApproval(ctx, event); err != nil {
			return nil, nil, fmt.Errorf("failed to publish implicit approval: %w", err)
		}
	}

	metrics.RequestsCreated.WithLabelValues(string(request.Chain)).Inc()
	uc.logger.Info("payment request accepted",
		zap.String("request_id", request.ID.String()),
		zap.String("tenant_id", tenantID),
		zap.String("chain", string(request.Chain)),
		zap.Int("approvers", len(approvers)))

	return request, approvers, nil
}

// validateMfaApprovers collects every push approver without a registered
// device into one aggregate error instead of failing on the first.
func (uc *TransactionUsecase) validateMfaApprovers(ctx context.Context, accounts []*domain.Account) error {
	var invalid []string
	for _, account := range accounts {
		if account.ApprovalMethod != domain.ApprovalMethodPushChallenge {
			continue
		}
		if account.MfaDeviceID == "" {
			invalid = append(invalid, account.Identifier)
			continue
		}
		registered, err := uc.mfa.HasRegisteredDevice(ctx, account.MfaDeviceID)
		if err != nil {
			return fmt.Errorf("device lookup for %q failed: %w", account.Identifier, err)
		}
		if !registered {
			invalid = append(invalid, account.Identifier)
		}
	}

	if len(invalid) > 0 {
		return &xerrors.MfaSetupError{Approvers: invalid}
	}
	return nil
}

func (uc *TransactionUsecase) dispatchApprovals(
	ctx context.Context,
	request *domain.TransactionRequest,
	accounts []*domain.Account,
	dest *domain.Account,
) ([]*domain.Approver, error) {
	asset := "tokens"
	if request.AssetCode != nil {
		asset = *request.AssetCode
	}
	reason := fmt.Sprintf("Payment of %s %s to account %s.", request.Amount, asset, dest.Identifier)

	approvers := make([]*domain.Approver, 0, len(accounts))
	for _, account := range accounts {
		approver := &domain.Approver{
			RequestID: request.ID,
			AccountID: account.ID,
			Method:    account.ApprovalMethod,
		}

		switch account.ApprovalMethod {
		case domain.ApprovalMethodPushChallenge:
			challengeID, err := uc.mfa.SendChallenge(ctx, account.MfaDeviceID, domain.ChallengeContext{
				Chain:     request.Chain,
				RequestID: request.ID.String(),
				Reason:    reason,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to send challenge to %q: %w", account.Identifier, err)
			}
			approver.ChallengeID = &challengeID
			approver.Status = domain.ApproverStatusPending

		case domain.ApprovalMethodImplicit:
			approver.Status = domain.ApproverStatusApproved

		case domain.ApprovalMethodOutOfBandCode:
			// The code exchange happens outside this service; the decision
			// arrives through the approvals callback under this locally
			// generated challenge id.
			challengeID := uuid.NewString()
			approver.ChallengeID = &challengeID
			approver.Status = domain.ApproverStatusPending

		default:
			return nil, fmt.Errorf("%w: unknown approval method %q", xerrors.ErrInvalidRequest, account.ApprovalMethod)
		}

		approvers = append(approvers, approver)
	}

	return approvers, nil
}

// ApplyApprovalDecision records an approver's terminal decision, identified
// by the provider challenge id, and publishes the status change.
func (uc *TransactionUsecase) ApplyApprovalDecision(
	ctx context.Context,
	tenantID string,
	challengeID string,
	approved bool,
) (uuid.UUID, error) {
	status := domain.ApproverStatusDenied
	if approved {
		status = domain.ApproverStatusApproved
	}

	requestID, err := uc.store.ApplyChallengeDecision(ctx, tenantID, challengeID, status)
	if err != nil {
		return uuid.Nil, err
	}

	event := domain.ApprovalEvent{TenantID: tenantID, RequestID: requestID.String()}
	if err := uc.bus.PublishApproval(ctx, event); err != nil {
		return uuid.Nil, fmt.Errorf("failed to publish approval event: %w", err)
	}

	return requestID, nil
}

// ProcessApprovalEvent is the completion evaluator. It is safe under
// duplicate and concurrent deliveries: the only side effect is gated behind
// the submission claim, which exactly one caller per request ever wins.
func (uc *TransactionUsecase) ProcessApprovalEvent(ctx context.Context, event domain.ApprovalEvent) error {
	metrics.ApprovalEvents.Inc()

	requestID, err := uuid.Parse(event.RequestID)
	if err != nil {
		uc.logger.Warn("dropping approval event with malformed request id",
			zap.String("request_id", event.RequestID))
		return nil
	}

	request, err := uc.store.GetRequest(ctx, event.TenantID, requestID)
	if errors.Is(err, xerrors.ErrTransactionNotFound) {
		uc.logger.Warn("dropping approval event for unknown transaction",
			zap.String("request_id", event.RequestID),
			zap.String("tenant_id", event.TenantID))
		return nil
	}
	if err != nil {
		return err
	}

	response, err := uc.store.GetResponse(ctx, requestID)
	if err != nil {
		return err
	}
	if response.TransactionHash != nil {
		// Already signed and submitted; duplicate delivery.
		return nil
	}

	approvers, err := uc.store.GetApprovers(ctx, requestID)
	if err != nil {
		return err
	}
	for _, approver := range approvers {
		if approver.Status != domain.ApproverStatusApproved {
			// Not everyone has approved yet; a later event re-evaluates.
			return nil
		}
	}

	claimed, err := uc.store.ClaimSubmission(ctx, requestID)
	if err != nil {
		return err
	}
	if !claimed {
		// Some concurrent delivery won the claim and owns submission.
		return nil
	}

	uc.submitTransaction(ctx, request)
	return nil
}

// submitTransaction runs once per request, after the submission claim is
// won. Failures are recorded against the response and never retried
// automatically: re-driving a half-signed payment is an operator decision.
func (uc *TransactionUsecase) submitTransaction(ctx context.Context, request *domain.TransactionRequest) {
	timer := prometheus.NewTimer(metrics.SubmissionLatency.WithLabelValues(string(request.Chain)))
	defer timer.ObserveDuration()

	descriptor := buildDescriptor(request)

	signed, err := uc.signer.Sign(ctx, request.TenantID, request.Chain, descriptor)
	if err != nil {
		uc.logger.Error("signing failed",
			zap.String("request_id", request.ID.String()),
			zap.Bool("retryable", xerrors.IsTransient(err)),
			zap.Error(err))
		metrics.Submissions.WithLabelValues(string(request.Chain), "signing_failed").Inc()
		uc.recordFailure(ctx, request.ID, "signing", err)
		return
	}

	adapter, err := uc.chains.Get(request.Chain)
	if err != nil {
		metrics.Submissions.WithLabelValues(string(request.Chain), "no_adapter").Inc()
		uc.recordFailure(ctx, request.ID, "submission", err)
		return
	}

	result, err := adapter.Submit(ctx, signed.SignedPayload)
	if err != nil {
		uc.logger.Error("submission failed",
			zap.String("request_id", request.ID.String()),
			zap.Bool("retryable", xerrors.IsTransient(err)),
			zap.Error(err))
		metrics.Submissions.WithLabelValues(string(request.Chain), "submit_error").Inc()
		uc.recordFailure(ctx, request.ID, "submission", err)
		return
	}

	resultPayload, marshalErr := json.Marshal(map[string]any{
		"result_code": result.ResultCode,
		"raw":         result.Raw,
	})
	if marshalErr != nil {
		resultPayload = []byte(fmt.Sprintf(`{"result_code":%q}`, result.ResultCode))
	}

	now := time.Now()
	response := &domain.TransactionResponse{
		RequestID:       request.ID,
		SignedPayload:   &signed.SignedPayload,
		TransactionHash: &signed.TransactionHash,
		Success:         &result.Accepted,
		ResultPayload:   resultPayload,
		SubmittedAt:     &now,
	}

	if err := uc.store.RecordSubmissionResult(ctx, response); err != nil {
		if errors.Is(err, xerrors.ErrAlreadySubmitted) {
			uc.logger.Warn("submission result already recorded",
				zap.String("request_id", request.ID.String()))
			return
		}
		uc.logger.Error("failed to record submission result",
			zap.String("request_id", request.ID.String()),
			zap.Error(err))
		return
	}

	outcome := "rejected"
	if result.Accepted {
		outcome = "accepted"
	}
	metrics.Submissions.WithLabelValues(string(request.Chain), outcome).Inc()

	uc.logger.Info("transaction submitted",
		zap.String("request_id", request.ID.String()),
		zap.String("chain", string(request.Chain)),
		zap.String("tx_hash", signed.TransactionHash),
		zap.Bool("accepted", result.Accepted))
}

func (uc *TransactionUsecase) recordFailure(ctx context.Context, requestID uuid.UUID, stage string, cause error) {
	failed := false
	now := time.Now()

	resultPayload, err := json.Marshal(map[string]any{
		"stage":     stage,
		"error":     cause.Error(),
		"retryable": xerrors.IsTransient(cause),
	})
	if err != nil {
		resultPayload = []byte(`{"error":"failed to marshal failure detail"}`)
	}

	response := &domain.TransactionResponse{
		RequestID:     requestID,
		Success:       &failed,
		ResultPayload: resultPayload,
		SubmittedAt:   &now,
	}

	if err := uc.store.RecordSubmissionResult(ctx, response); err != nil && !errors.Is(err, xerrors.ErrAlreadySubmitted) {
		uc.logger.Error("failed to record submission failure",
			zap.String("request_id", requestID.String()),
			zap.Error(err))
	}
}

func buildDescriptor(request *domain.TransactionRequest) *domain.PaymentDescriptor {
	descriptor := &domain.PaymentDescriptor{
		Source:       fmt.Sprintf("%d", request.SourceAccountID),
		Destination:  fmt.Sprintf("%d", request.DestAccountID),
		Amount:       request.Amount,
		AssetCode:    request.AssetCode,
		AssetIssuer:  request.AssetIssuer,
		Memo:         request.Memo,
		LedgerFields: request.LedgerFields,
	}
	if request.PaymentChannelAccount != nil {
		channel := fmt.Sprintf("%d", *request.PaymentChannelAccount)
		descriptor.PaymentChannel = &channel
	}
	return descriptor
}

// ExpirePendingApprovers times out approvers that have waited longer than
// ttl. The trigger cadence is an operational policy; only the terminal
// TIMED_OUT semantics are fixed here.
func (uc *TransactionUsecase) ExpirePendingApprovers(ctx context.Context, ttl time.Duration) (int64, error) {
	return uc.store.ExpirePendingApprovers(ctx, time.Now().Add(-ttl))
}
