package bitcoin

import (
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

// Adapter talks to an Esplora-style REST API (blockstream.info and
// compatible). Signed payloads are raw transaction hex.
type Adapter struct {
	apiURL     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAdapter(apiURL string, timeout time.Duration, logger *zap.Logger) *Adapter {
	return &Adapter{
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (a *Adapter) Name() domain.ChainName {
	return domain.ChainBitcoin
}

func (a *Adapter) Submit(ctx context.Context, signedPayload string) (*domain.SubmissionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL+"/tx", strings.NewReader(signedPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("bitcoin broadcast failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("failed to read broadcast response: %w", err))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, xerrors.Transient(fmt.Errorf("bitcoin api returned status %d: %s", resp.StatusCode, body))
	}

	// On success the API returns the txid as plain text; on rejection it
	// returns the node's reject reason.
	accepted := resp.StatusCode == http.StatusOK
	resultCode := "accepted"
	if !accepted {
		resultCode = strings.TrimSpace(string(body))
	}

	a.logger.Info("bitcoin transaction submitted",
		zap.Bool("accepted", accepted),
		zap.String("result_code", resultCode))

	return &domain.SubmissionResult{
		Accepted:   accepted,
		ResultCode: resultCode,
	}, nil
}

func (a *Adapter) GetTransaction(ctx context.Context, hash string) (*domain.TxInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiURL+"/tx/"+hash, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tx lookup request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("bitcoin tx lookup failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("failed to read tx response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Transient(fmt.Errorf("bitcoin api returned status %d: %s", resp.StatusCode, body))
	}

	var parsed struct {
		Status struct {
			Confirmed   bool   `json:"confirmed"`
			BlockHeight *int64 `json:"block_height"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse bitcoin transaction: %w", err)
	}

	return &domain.TxInfo{
		Confirmed:      parsed.Status.Confirmed,
		LedgerPosition: parsed.Status.BlockHeight,
		Raw:            body,
	}, nil
}
