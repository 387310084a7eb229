package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scalex/domain/orderbook"
	"scalex/infra/ledger"
	"scalex/service"
)

var (
	alice = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	bob   = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

func newTestServer(t *testing.T) (*httptest.Server, *ledger.Ledger) {
	t.Helper()
	reg, err := service.NewRegistry([]orderbook.Config{{
		PoolID:      "ETH-USD",
		BaseAsset:   "ETH",
		QuoteAsset:  "USD",
		TickSize:    1,
		LotSize:     1,
		MinQuantity: 1,
		MaxQuantity: 1_000_000,
		BaseUnit:    1,
	}})
	require.NoError(t, err)

	bank := ledger.New()
	router := service.NewRouter(zap.NewNop(), reg, bank, bank, nil, nil)
	srv := httptest.NewServer(New(zap.NewNop(), router).Routes())
	t.Cleanup(srv.Close)
	return srv, bank
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPlaceLimitOrderEndpoint(t *testing.T) {
	srv, bank := newTestServer(t)
	bank.Deposit(alice, "USD", 500)

	resp := postJSON(t, srv.URL+"/api/orders/limit", LimitOrderRequest{
		Pool: "ETH-USD", Owner: alice, Side: "buy", Price: 100, Quantity: 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out PlaceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotZero(t, out.OrderID)
	require.True(t, out.Resting)
	require.Equal(t, "open", out.Status)
}

func TestErrorStatusMapping(t *testing.T) {
	srv, bank := newTestServer(t)
	bank.Deposit(alice, "USD", 500)

	// Unknown pool: 404.
	resp := postJSON(t, srv.URL+"/api/orders/limit", LimitOrderRequest{
		Pool: "NOPE", Owner: alice, Side: "buy", Price: 100, Quantity: 5,
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// No funds: 402.
	resp = postJSON(t, srv.URL+"/api/orders/limit", LimitOrderRequest{
		Pool: "ETH-USD", Owner: bob, Side: "buy", Price: 100, Quantity: 5,
	})
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	// FOK against an empty book: 422.
	resp = postJSON(t, srv.URL+"/api/orders/limit", LimitOrderRequest{
		Pool: "ETH-USD", Owner: alice, Side: "buy", TIF: "fok", Price: 100, Quantity: 5,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Malformed side: 400 before it reaches the router.
	resp = postJSON(t, srv.URL+"/api/orders/limit", map[string]any{
		"pool": "ETH-USD", "owner": alice, "side": "sideways", "price": 100, "quantity": 5,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	srv, bank := newTestServer(t)
	bank.Deposit(alice, "USD", 500)

	resp := postJSON(t, srv.URL+"/api/orders/limit", LimitOrderRequest{
		Pool: "ETH-USD", Owner: alice, Side: "buy", Price: 100, Quantity: 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var placed PlaceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&placed))

	get, err := http.Get(fmt.Sprintf("%s/api/orders/ETH-USD/%d", srv.URL, placed.OrderID))
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)
	var order OrderResponse
	require.NoError(t, json.NewDecoder(get.Body).Decode(&order))
	require.Equal(t, alice, order.Owner)
	require.Equal(t, "buy", order.Side)

	best, err := http.Get(srv.URL + "/api/book/ETH-USD/best?side=buy")
	require.NoError(t, err)
	defer best.Body.Close()
	require.Equal(t, http.StatusOK, best.StatusCode)
	var lvl LevelResponse
	require.NoError(t, json.NewDecoder(best.Body).Decode(&lvl))
	require.Equal(t, int64(100), lvl.Price)

	resp = postJSON(t, srv.URL+"/api/orders/cancel", CancelRequest{
		Pool: "ETH-USD", OrderID: placed.OrderID, Caller: alice,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Stranger cancelling someone else's order: 403.
	resp2 := postJSON(t, srv.URL+"/api/orders/limit", LimitOrderRequest{
		Pool: "ETH-USD", Owner: alice, Side: "buy", Price: 99, Quantity: 5,
	})
	var placed2 PlaceResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&placed2))
	resp = postJSON(t, srv.URL+"/api/orders/cancel", CancelRequest{
		Pool: "ETH-USD", OrderID: placed2.OrderID, Caller: bob,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBatchCancelEndpoint(t *testing.T) {
	srv, bank := newTestServer(t)
	bank.Deposit(alice, "USD", 1000)

	var ids []uint64
	for _, p := range []int64{100, 99} {
		resp := postJSON(t, srv.URL+"/api/orders/limit", LimitOrderRequest{
			Pool: "ETH-USD", Owner: alice, Side: "buy", Price: p, Quantity: 5,
		})
		var placed PlaceResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&placed))
		ids = append(ids, placed.OrderID)
	}
	ids = append(ids, 424242)

	resp := postJSON(t, srv.URL+"/api/orders/cancel/batch", BatchCancelRequest{
		Pool: "ETH-USD", OrderIDs: ids, Caller: alice,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out BatchCancelResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Results, 3)
	require.True(t, out.Results[0].OK)
	require.True(t, out.Results[1].OK)
	require.False(t, out.Results[2].OK)
}

func TestPauseEndpoints(t *testing.T) {
	srv, bank := newTestServer(t)
	bank.Deposit(alice, "USD", 500)

	resp, err := http.Post(srv.URL+"/api/pools/ETH-USD/pause", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	placed := postJSON(t, srv.URL+"/api/orders/limit", LimitOrderRequest{
		Pool: "ETH-USD", Owner: alice, Side: "buy", Price: 100, Quantity: 5,
	})
	require.Equal(t, http.StatusServiceUnavailable, placed.StatusCode)

	resp, err = http.Post(srv.URL+"/api/pools/ETH-USD/resume", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
