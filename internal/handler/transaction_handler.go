package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"custody-service/internal/domain"
	"custody-service/internal/usecase"
	"custody-service/internal/xerrors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TransactionHandler struct {
	transactionUC *usecase.TransactionUsecase
	logger        *zap.Logger
}

func NewTransactionHandler(transactionUC *usecase.TransactionUsecase, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		transactionUC: transactionUC,
		logger:        logger,
	}
}

type paymentRequest struct {
	Source            string            `json:"source"`
	Destination       string            `json:"destination"`
	PaymentChannel    string            `json:"payment_channel,omitempty"`
	AdditionalSigners []string          `json:"additional_signers,omitempty"`
	Amount            string            `json:"amount"`
	AssetCode         *string           `json:"asset_code,omitempty"`
	AssetIssuer       *string           `json:"asset_issuer,omitempty"`
	Memo              *string           `json:"memo,omitempty"`
	LedgerFields      map[string]string `json:"ledger_fields,omitempty"`
}

type paymentResponse struct {
	ID        string                 `json:"id"`
	Status    string                 `json:"status"`
	Approvals []usecase.ApprovalView `json:"approvals"`
}

// CreatePayment accepts a payment intent. The request id in the 202 response
// is the handle for all later status polling.
func (h *TransactionHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "missing X-Tenant-ID header")
		return
	}
	idempotencyKey := r.Header.Get("X-Idempotency-Key")
	if idempotencyKey == "" {
		respondError(w, http.StatusBadRequest, "missing X-Idempotency-Key header")
		return
	}

	chain := domain.ChainName(chi.URLParam(r, "chain"))

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" || req.Destination == "" || req.Amount == "" {
		respondError(w, http.StatusBadRequest, "source, destination and amount are required")
		return
	}

	input := &usecase.PaymentInput{
		Chain:             chain,
		SourceIdentifier:  req.Source,
		DestIdentifier:    req.Destination,
		PaymentChannel:    req.PaymentChannel,
		AdditionalSigners: req.AdditionalSigners,
		Amount:            req.Amount,
		AssetCode:         req.AssetCode,
		AssetIssuer:       req.AssetIssuer,
		Memo:              req.Memo,
		LedgerFields:      req.LedgerFields,
	}

	request, approvers, err := h.transactionUC.CreatePayment(ctx, tenantID, idempotencyKey, input)
	if err != nil {
		h.respondUsecaseError(w, r, err)
		return
	}

	// Approvers come back in dispatch order: source, additional signers,
	// then the payment channel account.
	identifiers := append([]string{req.Source}, req.AdditionalSigners...)
	if req.PaymentChannel != "" {
		identifiers = append(identifiers, req.PaymentChannel)
	}

	resp := paymentResponse{
		ID:     request.ID.String(),
		Status: string(domain.TransactionStatusPending),
	}
	for i, approver := range approvers {
		identifier := ""
		if i < len(identifiers) {
			identifier = identifiers[i]
		}
		resp.Approvals = append(resp.Approvals, usecase.ApprovalView{
			Identifier: identifier,
			Method:     approver.Method,
			Status:     approver.Status,
		})
	}

	respondJSON(w, http.StatusAccepted, resp)
}

// GetTransaction answers a status poll for a previously created request.
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "missing X-Tenant-ID header")
		return
	}

	id := chi.URLParam(r, "id")

	view, err := h.transactionUC.GetTransactionStatus(ctx, tenantID, id)
	if err != nil {
		h.respondUsecaseError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (h *TransactionHandler) respondUsecaseError(w http.ResponseWriter, r *http.Request, err error) {
	var mfaErr *xerrors.MfaSetupError

	switch {
	case errors.Is(err, xerrors.ErrDuplicateIdempotencyKey):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &mfaErr):
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "one or more approvers are invalid",
			"invalid_approvers": mfaErr.Approvers,
		})
	case errors.Is(err, xerrors.ErrAccountNotFound),
		errors.Is(err, xerrors.ErrTransactionNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, xerrors.ErrChainNotSupported),
		errors.Is(err, xerrors.ErrInvalidAmount),
		errors.Is(err, xerrors.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
