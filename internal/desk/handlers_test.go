package desk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otcdesk/desk-engine/internal/model"
)

func newAPIServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	srv := httptest.NewServer(f.svc.Routes())
	t.Cleanup(srv.Close)
	return f, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getResp(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleCreateRFQ(t *testing.T) {
	f, srv := newAPIServer(t)

	resp := postJSON(t, srv.URL+"/rfqs", map[string]any{
		"client_id":      f.client.ID,
		"instrument_id":  f.instrument.ID,
		"side":           "buy",
		"size":           "2",
		"expiry_seconds": 30,
		"requested_by":   "trader-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var rfq model.RFQ
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rfq))
	assert.Equal(t, model.RFQQuoted, rfq.Status)
	assert.Equal(t, "Lone Star Capital", rfq.ClientName)
	assert.True(t, rfq.QuotedPrice.Equal(d("50062.50")))
}

func TestHandleCreateRFQ_Validation(t *testing.T) {
	f, srv := newAPIServer(t)

	resp := postJSON(t, srv.URL+"/rfqs", map[string]any{
		"client_id": f.client.ID, "instrument_id": f.instrument.ID,
		"side": "long", "size": "2",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/rfqs", map[string]any{
		"client_id": f.client.ID, "instrument_id": f.instrument.ID,
		"side": "buy", "size": "-1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleCreateRFQ_UnknownClient(t *testing.T) {
	f, srv := newAPIServer(t)

	resp := postJSON(t, srv.URL+"/rfqs", map[string]any{
		"client_id": 999, "instrument_id": f.instrument.ID,
		"side": "buy", "size": "1",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleGetRFQ_NotFound(t *testing.T) {
	_, srv := newAPIServer(t)
	resp := getResp(t, srv.URL+"/rfqs/no-such-id")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleExecuteTrade_HardBreach(t *testing.T) {
	f, srv := newAPIServer(t)
	require.NoError(t, f.store.CreateRiskLimit(context.Background(), &model.RiskLimit{
		SoftLimitUSD: d("500000"), HardLimitUSD: d("1000000"),
		LeverageLimit: d("3.5"), Active: true, UpdatedAt: f.clock,
	}))

	resp := postJSON(t, srv.URL+"/trades", map[string]any{
		"client_id": f.client.ID, "instrument_id": f.instrument.ID,
		"side": "buy", "size": "50", "price": "50000", "executed_by": "trader-1",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "hard limit")
}

func TestHandleListTrades_FilterAndPaging(t *testing.T) {
	f, srv := newAPIServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.ExecuteTrade(ctx, ExecuteTradeParams{
			ClientID: f.client.ID, InstrumentID: f.instrument.ID,
			Side: model.SideBuy, Size: d("1"), Price: d("50000"), ExecutedBy: "trader-1",
		})
		require.NoError(t, err)
	}

	resp := getResp(t, fmt.Sprintf("%s/trades?client_id=%d&side=buy&page=1&page_size=2", srv.URL, f.client.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page TradePage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Trades, 2)

	resp = getResp(t, srv.URL+"/trades?side=hold")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleExportTrades(t *testing.T) {
	f, srv := newAPIServer(t)
	_, err := f.svc.ExecuteTrade(context.Background(), ExecuteTradeParams{
		ClientID: f.client.ID, InstrumentID: f.instrument.ID,
		Side: model.SideSell, Size: d("2"), Price: d("50000"), ExecutedBy: "trader-1",
	})
	require.NoError(t, err)

	resp := getResp(t, srv.URL+"/trades/export.csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "trade_id,timestamp,client,instrument,side,size,price,notional_usd", lines[0])
	assert.Contains(t, lines[1], "Lone Star Capital")
	assert.Contains(t, lines[1], "BTC-USD")
	assert.Contains(t, lines[1], "sell")
}

func TestHandleRequestOverride(t *testing.T) {
	f, srv := newAPIServer(t)
	require.NoError(t, f.store.CreateRiskLimit(context.Background(), &model.RiskLimit{
		SoftLimitUSD: d("500000"), HardLimitUSD: d("1000000"),
		LeverageLimit: d("3.5"), RequiresSupervisor: true, Active: true, UpdatedAt: f.clock,
	}))

	resp := postJSON(t, srv.URL+"/limits/override", map[string]any{
		"client_id": f.client.ID, "instrument_id": f.instrument.ID,
		"proposed_notional_usd": "2000000", "reason": "hedge unwind",
		"actor_role": "risk", "requested_by": "risk-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision OverrideDecision
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decision))
	assert.Equal(t, "pending_supervisor_approval", decision.Decision)

	resp = postJSON(t, srv.URL+"/limits/override", map[string]any{
		"client_id": f.client.ID, "instrument_id": f.instrument.ID,
		"proposed_notional_usd": "2000000", "actor_role": "ceo",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleVerifyAuditChain(t *testing.T) {
	f, srv := newAPIServer(t)
	_, err := f.svc.CreateRFQ(context.Background(), CreateRFQParams{
		ClientID: f.client.ID, InstrumentID: f.instrument.ID,
		Side: model.SideBuy, Size: d("1"), ExpirySeconds: 30, RequestedBy: "trader-1",
	})
	require.NoError(t, err)

	resp := getResp(t, srv.URL+"/audit/verify")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["valid"])
}

func TestHandleCurrentPricesEmpty(t *testing.T) {
	_, srv := newAPIServer(t)
	resp := getResp(t, srv.URL+"/prices/current")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ticks []model.PriceTick
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ticks))
	assert.Empty(t, ticks)
}
