package signer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custody-service/internal/domain"
	"custody-service/internal/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSign(t *testing.T) {
	var gotPath, gotToken string
	var gotDescriptor domain.PaymentDescriptor

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Vault-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDescriptor))
		w.Write([]byte(`{"data":{"signed_transaction":"AAAA-signed","transaction_hash":"abc123"}}`))
	}))
	defer server.Close()

	vault := NewVaultSigner(server.URL, "s.token", time.Second, zap.NewNop())

	desc := &domain.PaymentDescriptor{
		Source:      "1",
		Destination: "2",
		Amount:      "100.25",
	}
	signed, err := vault.Sign(context.Background(), "tenant-1", domain.ChainStellar, desc)
	require.NoError(t, err)

	assert.Equal(t, "/v1/stellar/tenant-1/payments", gotPath)
	assert.Equal(t, "s.token", gotToken)
	assert.Equal(t, "100.25", gotDescriptor.Amount)
	assert.Equal(t, "AAAA-signed", signed.SignedPayload)
	assert.Equal(t, "abc123", signed.TransactionHash)
}

func TestSign_RejectionIsNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":["permission denied"]}`))
	}))
	defer server.Close()

	vault := NewVaultSigner(server.URL, "s.token", time.Second, zap.NewNop())

	_, err := vault.Sign(context.Background(), "tenant-1", domain.ChainStellar, &domain.PaymentDescriptor{Amount: "1"})
	require.Error(t, err)
	assert.False(t, xerrors.IsTransient(err))
}

func TestSign_TransportErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	vault := NewVaultSigner(server.URL, "s.token", time.Second, zap.NewNop())

	_, err := vault.Sign(context.Background(), "tenant-1", domain.ChainStellar, &domain.PaymentDescriptor{Amount: "1"})
	require.Error(t, err)
	assert.True(t, xerrors.IsTransient(err))
}

func TestSign_EmptyPayloadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	vault := NewVaultSigner(server.URL, "s.token", time.Second, zap.NewNop())

	_, err := vault.Sign(context.Background(), "tenant-1", domain.ChainStellar, &domain.PaymentDescriptor{Amount: "1"})
	assert.Error(t, err)
}
