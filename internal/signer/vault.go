package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"custody-service/internal/domain"
	"custody-service/internal/xerrors"

	"go.uber.org/zap"
)

// VaultSigner asks a Vault-style plugin to build and sign a payment from a
// ledger-agnostic descriptor. Key material lives entirely on the Vault side;
// this client only ever sees the signed payload and its hash.
type VaultSigner struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewVaultSigner(baseURL, token string, timeout time.Duration, logger *zap.Logger) *VaultSigner {
	return &VaultSigner{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Sign posts the descriptor to the per-chain, per-tenant plugin path and
// returns the signed payload. A non-2xx response is a definitive signing
// failure; only transport errors are reported as transient.
func (s *VaultSigner) Sign(ctx context.Context, tenantID string, chain domain.ChainName, desc *domain.PaymentDescriptor) (*domain.SignedPayment, error) {
	body, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment descriptor: %w", err)
	}

	path := fmt.Sprintf("%s/v1/%s/%s/payments", s.baseURL, strings.ToLower(string(chain)), tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build signing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vault-Token", s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("signer call failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("failed to read signer response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signer rejected payment (status %d): %s", resp.StatusCode, respBody)
	}

	var parsed struct {
		Data struct {
			SignedTransaction string `json:"signed_transaction"`
			TransactionHash   string `json:"transaction_hash"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse signer response: %w", err)
	}
	if parsed.Data.SignedTransaction == "" {
		return nil, fmt.Errorf("signer response contained no signed transaction")
	}

	s.logger.Info("payment signed",
		zap.String("tenant_id", tenantID),
		zap.String("chain", string(chain)),
		zap.String("tx_hash", parsed.Data.TransactionHash))

	return &domain.SignedPayment{
		SignedPayload:   parsed.Data.SignedTransaction,
		TransactionHash: parsed.Data.TransactionHash,
	}, nil
}
