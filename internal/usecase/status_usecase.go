package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"custody-service/internal/domain"
	"custody-service/internal/xerrors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ApprovalView is one approver's state as reported to the caller.
type ApprovalView struct {
	Identifier string                `json:"identifier"`
	Method     domain.ApprovalMethod `json:"method"`
	Status     domain.ApproverStatus `json:"status"`
}

// TransactionStatusView merges stored state with a live ledger lookup.
type TransactionStatusView struct {
	ID              string                   `json:"id"`
	Chain           domain.ChainName         `json:"chain"`
	Status          domain.TransactionStatus `json:"status"`
	Approvals       []ApprovalView           `json:"approvals"`
	TransactionHash *string                  `json:"transaction_hash,omitempty"`
	LedgerPosition  *int64                   `json:"ledger_position,omitempty"`
	Success         *bool                    `json:"success,omitempty"`
	ResultPayload   json.RawMessage          `json:"result_payload,omitempty"`
	SubmittedAt     *time.Time               `json:"submitted_at,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
}

// GetTransactionStatus answers a status poll. Without a transaction hash the
// request is PENDING. With one, the ledger is asked: a confirmed ledger
// position means COMPLETE, anything else stays PENDING. A failed submission
// shows up through success/result_payload, not as a separate status value.
func (uc *TransactionUsecase) GetTransactionStatus(ctx context.Context, tenantID, id string) (*TransactionStatusView, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed transaction id", xerrors.ErrInvalidRequest)
	}

	request, err := uc.store.GetRequest(ctx, tenantID, requestID)
	if err != nil {
		return nil, err
	}
	approvers, err := uc.store.GetApprovers(ctx, requestID)
	if err != nil {
		return nil, err
	}
	response, err := uc.store.GetResponse(ctx, requestID)
	if err != nil {
		return nil, err
	}

	view := &TransactionStatusView{
		ID:              request.ID.String(),
		Chain:           request.Chain,
		Status:          domain.TransactionStatusPending,
		TransactionHash: response.TransactionHash,
		Success:         response.Success,
		ResultPayload:   response.ResultPayload,
		SubmittedAt:     response.SubmittedAt,
		CreatedAt:       request.CreatedAt,
	}

	for _, approver := range approvers {
		account, err := uc.accounts.GetByID(ctx, tenantID, approver.AccountID)
		if err != nil {
			return nil, err
		}
		view.Approvals = append(view.Approvals, ApprovalView{
			Identifier: account.Identifier,
			Method:     approver.Method,
			Status:     approver.Status,
		})
	}

	if response.TransactionHash == nil {
		return view, nil
	}

	adapter, err := uc.chains.Get(request.Chain)
	if err != nil {
		return nil, err
	}

	txInfo, err := adapter.GetTransaction(ctx, *response.TransactionHash)
	if err != nil {
		return nil, err
	}
	if txInfo == nil {
		// The ledger does not know the hash yet; still pending.
		return view, nil
	}

	if txInfo.Confirmed && txInfo.LedgerPosition != nil {
		view.Status = domain.TransactionStatusComplete
		view.LedgerPosition = txInfo.LedgerPosition
	} else {
		uc.logger.Debug("transaction known to ledger but not yet confirmed",
			zap.String("request_id", request.ID.String()))
	}

	return view, nil
}
