package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"yield-router-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Routes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.admin.AddAsset(ctx, "ops", models.Asset{Symbol: "USDC", Supported: true, Decimals: 6, RebalanceThresholdBps: 50}))
	_, err := f.admin.AddSource(ctx, "ops", newPool(t, "aave"))
	require.NoError(t, err)
	res, err := f.ledger.Deposit(ctx, "alice", "USDC", decimal.NewFromInt(250))
	require.NoError(t, err)
	require.True(t, res.Success)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	srv := NewServer(":0", f.ledger, metrics)

	rec := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	rec = get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())

	rec = get(t, srv, "/api/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	var sources []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, "aave", sources[0]["Name"])

	rec = get(t, srv, "/api/positions/alice")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "250", views[0]["principal"])

	rec = get(t, srv, "/api/positions/alice?asset=USDC")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"asset":"USDC"`)

	rec = get(t, srv, "/api/positions/alice/history?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, string(models.EventDeposited), events[0]["Type"])
}

func TestServer_Errors(t *testing.T) {
	f := setup(t)
	srv := NewServer(":0", f.ledger, nil)

	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, srv, "/api/fees")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sources", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWriteError_Status(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, models.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	writeError(rec, models.ErrAssetNotSupported)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	writeError(rec, models.ErrSourceBusy)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	writeError(rec, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
