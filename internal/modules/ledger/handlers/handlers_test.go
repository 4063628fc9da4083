package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/events"
	"github.com/aristath/valuator/internal/modules/ledger"
	testingpkg "github.com/aristath/valuator/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buyBody = `[{
	"id": "T-1",
	"portfolioId": "P1",
	"trnType": "BUY",
	"asset": {"id": "NASDAQ:MSFT", "code": "MSFT", "market": "NASDAQ", "currency": "USD"},
	"tradeDate": "2024-01-02",
	"quantity": "10",
	"price": "100",
	"tradeAmount": "1000",
	"tradeCurrency": "USD"
}]`

func setup(t *testing.T) http.Handler {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	bus := events.NewBus(zerolog.Nop())
	t.Cleanup(bus.Wait)
	service := ledger.NewService(
		ledger.NewTransactionRepository(db.Conn(), zerolog.Nop()),
		events.NewManager(bus, zerolog.Nop()),
		zerolog.Nop(),
	)

	router := chi.NewRouter()
	NewHandler(service, zerolog.Nop()).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLedgerLifecycle(t *testing.T) {
	router := setup(t)

	rec := do(router, http.MethodPost, "/trns", buyBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var saved []domain.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	require.Len(t, saved, 1)
	assert.Equal(t, domain.TrnConfirmed, saved[0].Status)

	rec = do(router, http.MethodGet, "/trns/P1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []domain.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "1000", listed[0].TradeAmount.String())

	rec = do(router, http.MethodGet, "/trns/P1?toDate=2024-01-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(router, http.MethodGet, "/trns/P1/T-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodDelete, "/trns/P1/T-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(router, http.MethodGet, "/trns/P1/T-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestHandleRecord_Rejections(t *testing.T) {
	router := setup(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `[{`},
		{"empty batch", `[]`},
		{"unknown type", strings.Replace(buyBody, `"BUY"`, `"SWAP"`, 1)},
		{"missing portfolio", strings.Replace(buyBody, `"portfolioId": "P1",`, ``, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodPost, "/trns", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestHandleList_BadDate(t *testing.T) {
	router := setup(t)
	rec := do(router, http.MethodGet, "/trns/P1?toDate=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
