package stellar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"custody-service/internal/domain"
	"custody-service/internal/xerrors"

	"go.uber.org/zap"
)

// Adapter talks to a Horizon server. Signed payloads are base64 transaction
// envelopes (XDR) produced by the signer.
type Adapter struct {
	horizonURL string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAdapter(horizonURL string, timeout time.Duration, logger *zap.Logger) *Adapter {
	return &Adapter{
		horizonURL: strings.TrimRight(horizonURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (a *Adapter) Name() domain.ChainName {
	return domain.ChainStellar
}

func (a *Adapter) Submit(ctx context.Context, signedPayload string) (*domain.SubmissionResult, error) {
	form := url.Values{"tx": {signedPayload}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.horizonURL+"/transactions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build horizon submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("horizon submit failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("failed to read horizon response: %w", err))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, xerrors.Transient(fmt.Errorf("horizon returned status %d: %s", resp.StatusCode, body))
	}

	var parsed struct {
		Hash   string `json:"hash"`
		Ledger int64  `json:"ledger"`
		Extras struct {
			ResultCodes struct {
				Transaction string `json:"transaction"`
			} `json:"result_codes"`
		} `json:"extras"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse horizon response: %w", err)
	}

	accepted := resp.StatusCode == http.StatusOK
	resultCode := parsed.Extras.ResultCodes.Transaction
	if accepted {
		resultCode = "tx_success"
	}

	a.logger.Info("stellar transaction submitted",
		zap.Bool("accepted", accepted),
		zap.String("result_code", resultCode))

	return &domain.SubmissionResult{
		Accepted:   accepted,
		ResultCode: resultCode,
		Raw:        body,
	}, nil
}

func (a *Adapter) GetTransaction(ctx context.Context, hash string) (*domain.TxInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.horizonURL+"/transactions/"+hash, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build horizon lookup request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("horizon lookup failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("failed to read horizon response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Transient(fmt.Errorf("horizon returned status %d: %s", resp.StatusCode, body))
	}

	var parsed struct {
		Ledger     int64 `json:"ledger"`
		Successful bool  `json:"successful"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse horizon transaction: %w", err)
	}

	var position *int64
	if parsed.Ledger > 0 {
		position = &parsed.Ledger
	}

	return &domain.TxInfo{
		Confirmed:      position != nil,
		LedgerPosition: position,
		Raw:            body,
	}, nil
}
