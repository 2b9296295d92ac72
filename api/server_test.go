package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tickex/engine"
	"tickex/events"
	"tickex/infra/kv"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := kv.NewMemStore()
	outbox, err := events.NewOutbox(store)
	require.NoError(t, err)
	exchange := engine.New(store, outbox, zerolog.Nop(), 0)
	return NewServer(exchange, NewHub(zerolog.Nop()), zerolog.Nop())
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/pairs", map[string]string{"base": "USDA", "quote": "USDB"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/v1/balances/deposit", map[string]any{
		"user": "alice", "token": "USDA", "amount": 50_000_000,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/v1/orders", map[string]any{
		"maker": "alice", "base": "USDA", "quote": "USDB",
		"side": "ask", "tick": 0, "amount": 50_000_000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var placed struct {
		OrderID uint64 `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))
	require.NotZero(t, placed.OrderID)

	rec = doJSON(t, s, http.MethodPost, "/v1/blocks/execute", map[string]any{
		"base": "USDA", "quote": "USDB", "order_ids": []uint64{placed.OrderID},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/v1/orders/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var order struct {
		State string `json:"state"`
		Price string `json:"price"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	require.Equal(t, "active", order.State)
	require.Equal(t, "1", order.Price)

	rec = doJSON(t, s, http.MethodGet, "/v1/pairs/USDA/USDB", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ob struct {
		BestAskTick  int32  `json:"best_ask_tick"`
		BestAskPrice string `json:"best_ask_price"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ob))
	require.Equal(t, int32(0), ob.BestAskTick)
	require.Equal(t, "1", ob.BestAskPrice)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	// Unknown pair.
	rec := doJSON(t, s, http.MethodGet, "/v1/pairs/NOPE/NADA", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Same token.
	rec = doJSON(t, s, http.MethodPost, "/v1/pairs", map[string]string{"base": "USDA", "quote": "USDA"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Duplicate pair.
	rec = doJSON(t, s, http.MethodPost, "/v1/pairs", map[string]string{"base": "USDA", "quote": "USDB"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, s, http.MethodPost, "/v1/pairs", map[string]string{"base": "USDA", "quote": "USDB"})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Insufficient balance.
	rec = doJSON(t, s, http.MethodPost, "/v1/orders", map[string]any{
		"maker": "broke", "base": "USDA", "quote": "USDB",
		"side": "ask", "tick": 0, "amount": 10_000_000,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "insufficient_balance", body.Code)

	// Bad side string.
	rec = doJSON(t, s, http.MethodPost, "/v1/orders", map[string]any{
		"maker": "alice", "base": "USDA", "quote": "USDB",
		"side": "sideways", "tick": 0, "amount": 10_000_000,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConstantsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/v1/constants", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var consts map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &consts))
	require.Equal(t, int64(-2000), consts["min_tick"])
	require.Equal(t, int64(2000), consts["max_tick"])
	require.Equal(t, int64(10), consts["tick_spacing"])
	require.Equal(t, int64(100_000), consts["price_scale"])
	require.Equal(t, int64(10_000_000), consts["min_order_size"])
}

func TestRequestIDPropagates(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	rec = doJSON(t, s, http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))
}
