package ripple

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, ok := results[req.Method]
		require.True(t, ok, "unexpected method %q", req.Method)
		w.Write([]byte(`{"result":` + result + `}`))
	}))
}

func TestSubmit(t *testing.T) {
	server := rpcServer(t, map[string]string{
		"submit": `{"engine_result":"tesSUCCESS","accepted":true}`,
	})
	defer server.Close()

	adapter := NewAdapter(server.URL, time.Second, zap.NewNop())

	result, err := adapter.Submit(context.Background(), "DEADBEEF")
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, "tesSUCCESS", result.ResultCode)
}

func TestSubmit_EngineRejection(t *testing.T) {
	server := rpcServer(t, map[string]string{
		"submit": `{"engine_result":"tecUNFUNDED_PAYMENT","accepted":false}`,
	})
	defer server.Close()

	adapter := NewAdapter(server.URL, time.Second, zap.NewNop())

	result, err := adapter.Submit(context.Background(), "DEADBEEF")
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, "tecUNFUNDED_PAYMENT", result.ResultCode)
}

func TestGetTransaction(t *testing.T) {
	server := rpcServer(t, map[string]string{
		"tx": `{"validated":true,"ledger_index":90001}`,
	})
	defer server.Close()

	adapter := NewAdapter(server.URL, time.Second, zap.NewNop())

	info, err := adapter.GetTransaction(context.Background(), "HASH")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.Confirmed)
	assert.Equal(t, int64(90001), *info.LedgerPosition)
}

func TestGetTransaction_NotFound(t *testing.T) {
	server := rpcServer(t, map[string]string{
		"tx": `{"error":"txnNotFound"}`,
	})
	defer server.Close()

	adapter := NewAdapter(server.URL, time.Second, zap.NewNop())

	info, err := adapter.GetTransaction(context.Background(), "HASH")
	require.NoError(t, err)
	assert.Nil(t, info)
}
