package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/valuator/internal/events"
	"github.com/aristath/valuator/internal/modules/marketdata"
	testingpkg "github.com/aristath/valuator/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) http.Handler {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	bus := events.NewBus(zerolog.Nop())
	t.Cleanup(bus.Wait)
	service := marketdata.NewService(
		marketdata.NewRepository(db.Conn(), zerolog.Nop()),
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

func TestPrices(t *testing.T) {
	router := setup(t)

	rec := do(router, http.MethodPost, "/prices", `[
		{"assetId": "NASDAQ:MSFT", "date": "2024-01-02", "close": "110.5"},
		{"assetId": "NASDAQ:AAPL", "date": "2024-01-02", "close": "190"}
	]`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"stored": 2}`, rec.Body.String())

	rec = do(router, http.MethodGet, "/prices?date=2024-01-02&assetId=NASDAQ:MSFT,NASDAQ:GOOG", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"NASDAQ:MSFT"`)
	assert.Contains(t, rec.Body.String(), `"close":"110.5"`)
	assert.NotContains(t, rec.Body.String(), "GOOG")

	rec = do(router, http.MethodGet, "/prices?date=2024-01-02", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/prices", `[{"assetId": "NASDAQ:MSFT", "date": "2024-01-02", "close": "0"}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRates(t *testing.T) {
	router := setup(t)

	rec := do(router, http.MethodPost, "/fx", `[{"from": "USD", "to": "NZD", "date": "2024-01-02", "rate": "1.6"}]`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(router, http.MethodGet, "/fx/usd/nzd?date=2024-01-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"from": "USD", "to": "NZD", "date": "2024-01-02", "rate": "1.6"}`, rec.Body.String())

	rec = do(router, http.MethodGet, "/fx/NZD/USD?date=2024-01-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rate":"0.625"`)

	rec = do(router, http.MethodGet, "/fx/USD/NZD?date=2024-01-03", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodPost, "/fx", `[{"from": "USD", "to": "XXQ", "date": "2024-01-02", "rate": "1.6"}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
