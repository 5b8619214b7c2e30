package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ChainName string

const (
	ChainEthereum ChainName = "ETHEREUM"
	ChainRipple   ChainName = "RIPPLE"
	ChainStellar  ChainName = "STELLAR"
	ChainBitcoin  ChainName = "BITCOIN"
)

type ApprovalMethod string

const (
	ApprovalMethodPushChallenge ApprovalMethod = "PUSH_CHALLENGE"
	ApprovalMethodImplicit      ApprovalMethod = "IMPLICIT"
	ApprovalMethodOutOfBandCode ApprovalMethod = "OUT_OF_BAND_CODE"
)

type ApproverStatus string

const (
	ApproverStatusPending  ApproverStatus = "PENDING"
	ApproverStatusApproved ApproverStatus = "APPROVED"
	ApproverStatusDenied   ApproverStatus = "DENIED"
	ApproverStatusTimedOut ApproverStatus = "TIMED_OUT"
)

// Terminal reports whether the status can no longer change. PENDING is the
// only non-terminal state; approver rows are written once past it.
func (s ApproverStatus) Terminal() bool {
	return s != ApproverStatusPending
}

type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"
	TransactionStatusComplete TransactionStatus = "COMPLETE"
)

// TransactionRequest is the durable record of a payment request. Immutable
// after creation; only its approver rows change as confirmations arrive.
type TransactionRequest struct {
	ID                    uuid.UUID
	TenantID              string
	Chain                 ChainName
	SourceAccountID       int64
	DestAccountID         int64
	PaymentChannelAccount *int64
	Amount                string // exact decimal string, never a float
	AssetCode             *string
	AssetIssuer           *string
	Memo                  *string
	LedgerFields          map[string]string
	CreatedAt             time.Time
}

// Approver is one required signer on a transaction request. The approver set
// is fixed at request creation.
type Approver struct {
	ID          int64
	RequestID   uuid.UUID
	AccountID   int64
	Method      ApprovalMethod
	Status      ApproverStatus
	ChallengeID *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TransactionResponse is the single mutable row per request. It is created as
// a placeholder alongside the request and updated exactly once by the
// submission path, under the submission_claimed guard.
type TransactionResponse struct {
	RequestID         uuid.UUID
	SubmissionClaimed bool
	SignedPayload     *string
	TransactionHash   *string
	Success           *bool
	ResultPayload     json.RawMessage
	SubmittedAt       *time.Time
	CreatedAt         time.Time
}

// PaymentDescriptor is the ledger-agnostic payload handed to the signer.
// Account references are internal ids; the signer resolves key material on
// its side of the custody boundary.
type PaymentDescriptor struct {
	Source         string            `json:"source"`
	Destination    string            `json:"destination"`
	PaymentChannel *string           `json:"payment_channel,omitempty"`
	Amount         string            `json:"amount"`
	AssetCode      *string           `json:"asset_code,omitempty"`
	AssetIssuer    *string           `json:"asset_issuer,omitempty"`
	Memo           *string           `json:"memo,omitempty"`
	LedgerFields   map[string]string `json:"ledger_fields,omitempty"`
}

// SignedPayment is the signer's output.
type SignedPayment struct {
	SignedPayload   string
	TransactionHash string
}

// ApprovalEvent notifies that some approver's status changed for a request.
// Delivery is at-least-once with no ordering guarantee.
type ApprovalEvent struct {
	TenantID  string `json:"tenant_id"`
	RequestID string `json:"request_id"`
}
