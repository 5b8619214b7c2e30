package mfa

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

// PushClient sends OneTouch-style push approval requests through an
// Authy-compatible API. The approve/deny decision comes back asynchronously
// through the approvals callback endpoint, not through this client.
type PushClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewPushClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *PushClient {
	return &PushClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *PushClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("X-Authy-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("mfa provider call failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("failed to read mfa provider response: %w", err))
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, xerrors.Transient(fmt.Errorf("mfa provider returned status %d: %s", resp.StatusCode, body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mfa provider returned status %d: %s", resp.StatusCode, body)
	}

	return body, nil
}

// HasRegisteredDevice reports whether the user has the push application
// installed and registered.
func (c *PushClient) HasRegisteredDevice(ctx context.Context, deviceID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/protected/json/users/%s/status", c.baseURL, url.PathEscape(deviceID)), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build device status request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return false, err
	}

	var parsed struct {
		Status struct {
			Registered   bool `json:"registered"`
			DevicesCount int  `json:"devices_count"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, fmt.Errorf("failed to parse device status: %w", err)
	}

	return parsed.Status.Registered && parsed.Status.DevicesCount > 0, nil
}

// SendChallenge creates a push approval request and returns the provider's
// challenge id, which later identifies the approver row when the decision
// callback arrives.
func (c *PushClient) SendChallenge(ctx context.Context, deviceID string, challenge domain.ChallengeContext) (string, error) {
	form := url.Values{
		"message":                 {challenge.Reason},
		"details[chain]":          {string(challenge.Chain)},
		"details[transaction_id]": {challenge.RequestID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/onetouch/json/users/%s/approval_requests", c.baseURL, url.PathEscape(deviceID)),
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build challenge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var parsed struct {
		ApprovalRequest struct {
			UUID string `json:"uuid"`
		} `json:"approval_request"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse challenge response: %w", err)
	}
	if parsed.ApprovalRequest.UUID == "" {
		return "", fmt.Errorf("mfa provider returned no challenge id")
	}

	c.logger.Info("push challenge sent",
		zap.String("request_id", challenge.RequestID),
		zap.String("challenge_id", parsed.ApprovalRequest.UUID))

	return parsed.ApprovalRequest.UUID, nil
}
