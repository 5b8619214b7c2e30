package domain

import (
	"context"
	"encoding/json"
)

// ChainAdapter is the per-ledger collaborator. The orchestrator never builds
// or parses wire-format transactions itself; it only hands a signed payload
// to the adapter and asks about confirmation later.
type ChainAdapter interface {
	// Name returns the ledger tag this adapter serves.
	Name() ChainName

	// Submit broadcasts a signed payload to the ledger.
	Submit(ctx context.Context, signedPayload string) (*SubmissionResult, error)

	// GetTransaction looks up a previously submitted transaction by hash.
	// Returns (nil, nil) when the ledger does not know the hash yet.
	GetTransaction(ctx context.Context, hash string) (*TxInfo, error)
}

// SubmissionResult is the ledger's answer to a submit call.
type SubmissionResult struct {
	Accepted   bool
	ResultCode string
	Raw        json.RawMessage
}

// TxInfo describes a transaction as seen by the ledger.
type TxInfo struct {
	Confirmed      bool
	LedgerPosition *int64
	Raw            json.RawMessage
}
