package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"custody-service/internal/usecase"
	"custody-service/internal/xerrors"

	"go.uber.org/zap"
)

// ApprovalHandler receives push-approval decision callbacks from the MFA
// provider.
type ApprovalHandler struct {
	transactionUC *usecase.TransactionUsecase
	logger        *zap.Logger
}

func NewApprovalHandler(transactionUC *usecase.TransactionUsecase, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		transactionUC: transactionUC,
		logger:        logger,
	}
}

type approvalCallback struct {
	TenantID    string `json:"tenant_id"`
	ChallengeID string `json:"challenge_id"`
	Status      string `json:"status"` // "approved" or "denied"
}

// HandleCallback applies an approver's decision. The provider retries
// undelivered callbacks, so duplicates are expected and acknowledged.
func (h *ApprovalHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cb approvalCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		respondError(w, http.StatusBadRequest, "invalid callback body")
		return
	}
	if cb.TenantID == "" || cb.ChallengeID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id and challenge_id are required")
		return
	}

	var approved bool
	switch cb.Status {
	case "approved":
		approved = true
	case "denied":
		approved = false
	default:
		respondError(w, http.StatusBadRequest, "status must be approved or denied")
		return
	}

	h.logger.Info("approval callback received",
		zap.String("tenant_id", cb.TenantID),
		zap.String("challenge_id", cb.ChallengeID),
		zap.String("status", cb.Status))

	requestID, err := h.transactionUC.ApplyApprovalDecision(ctx, cb.TenantID, cb.ChallengeID, approved)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrApproverFinalized):
			// Duplicate delivery; the first one already landed.
			respondJSON(w, http.StatusOK, map[string]string{"result": "already finalized"})
		case errors.Is(err, xerrors.ErrChallengeNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("failed to apply approval decision",
				zap.String("challenge_id", cb.ChallengeID),
				zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"result":         "accepted",
		"transaction_id": requestID.String(),
	})
}
