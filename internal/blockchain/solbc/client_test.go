// internal/blockchain/solbc/client_test.go
package solbc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

func rpcServer(t *testing.T, handle func(calls int32, req rpcRequest) any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		n := calls.Add(1)

		result := handle(n, req)
		if result == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func accountResult(data []byte) map[string]any {
	return map[string]any{
		"context": map[string]any{"slot": 100},
		"value": map[string]any{
			"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
			"executable": false,
			"lamports":   1000,
			"owner":      "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
			"rentEpoch":  0,
		},
	}
}

func testOptions() Options {
	return Options{RetryAttempts: 3, RetryDelay: time.Millisecond, RequestTimeout: time.Second}
}

func TestGetAccountDataRetries(t *testing.T) {
	srv, calls := rpcServer(t, func(n int32, req rpcRequest) any {
		assert.Equal(t, "getAccountInfo", req.Method)
		if n == 1 {
			return nil
		}
		return accountResult([]byte{1, 2, 3})
	})

	c, err := NewClient([]string{srv.URL}, testOptions(), zap.NewNop())
	require.NoError(t, err)

	data, err := c.GetAccountData(context.Background(), solana.SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetAccountDataNotFound(t *testing.T) {
	srv, calls := rpcServer(t, func(int32, rpcRequest) any {
		return map[string]any{"context": map[string]any{"slot": 1}, "value": nil}
	})

	c, err := NewClient([]string{srv.URL}, testOptions(), zap.NewNop())
	require.NoError(t, err)

	_, err = c.GetAccountData(context.Background(), solana.SystemProgramID)
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, int32(1), calls.Load(), "missing account is not retried")
}

func TestGetAccountDataGivesUp(t *testing.T) {
	srv, calls := rpcServer(t, func(int32, rpcRequest) any { return nil })

	c, err := NewClient([]string{srv.URL}, testOptions(), zap.NewNop())
	require.NoError(t, err)

	_, err = c.GetAccountData(context.Background(), solana.SystemProgramID)
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(nil, Options{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoRPCNodes)
}
