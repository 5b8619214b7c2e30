package ripple

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

// Adapter talks to a rippled node over its JSON-RPC interface.
type Adapter struct {
	rpcURL     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAdapter(rpcURL string, timeout time.Duration, logger *zap.Logger) *Adapter {
	return &Adapter{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (a *Adapter) Name() domain.ChainName {
	return domain.ChainRipple
}

type rpcRequest struct {
	Method string           `json:"method"`
	Params []map[string]any `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
}

func (a *Adapter) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Params: []map[string]any{params}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("rippled %s call failed: %w", method, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("failed to read rippled response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Transient(fmt.Errorf("rippled returned status %d: %s", resp.StatusCode, respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode rippled response: %w", err)
	}

	return rpcResp.Result, nil
}

func (a *Adapter) Submit(ctx context.Context, signedPayload string) (*domain.SubmissionResult, error) {
	result, err := a.call(ctx, "submit", map[string]any{"tx_blob": signedPayload})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		EngineResult        string `json:"engine_result"`
		EngineResultMessage string `json:"engine_result_message"`
		Accepted            bool   `json:"accepted"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse submit result: %w", err)
	}

	accepted := parsed.Accepted || strings.HasPrefix(parsed.EngineResult, "tes")

	a.logger.Info("ripple transaction submitted",
		zap.String("engine_result", parsed.EngineResult),
		zap.Bool("accepted", accepted))

	return &domain.SubmissionResult{
		Accepted:   accepted,
		ResultCode: parsed.EngineResult,
		Raw:        result,
	}, nil
}

func (a *Adapter) GetTransaction(ctx context.Context, hash string) (*domain.TxInfo, error) {
	result, err := a.call(ctx, "tx", map[string]any{"transaction": hash, "binary": false})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Error       string `json:"error"`
		Validated   bool   `json:"validated"`
		LedgerIndex *int64 `json:"ledger_index"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse tx result: %w", err)
	}

	if parsed.Error == "txnNotFound" {
		return nil, nil
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("rippled tx lookup error: %s", parsed.Error)
	}

	return &domain.TxInfo{
		Confirmed:      parsed.Validated && parsed.LedgerIndex != nil,
		LedgerPosition: parsed.LedgerIndex,
		Raw:            result,
	}, nil
}
