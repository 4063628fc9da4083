package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/events"
	"github.com/aristath/valuator/internal/modules/performance"
	valuationhandlers "github.com/aristath/valuator/internal/modules/valuation/handlers"
	testingpkg "github.com/aristath/valuator/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	series      func(portfolio domain.Portfolio, from, to string) (*performance.Series, error)
	snapshots   map[string]domain.CachedSnapshot
	invalidated []string
}

func (s *stubService) Series(_ context.Context, portfolio domain.Portfolio, from, to string) (*performance.Series, error) {
	return s.series(portfolio, from, to)
}

func (s *stubService) Snapshot(_ context.Context, portfolioID, date string) (*domain.CachedSnapshot, error) {
	snap, ok := s.snapshots[portfolioID+"@"+date]
	if !ok {
		return nil, domain.NewNotFoundError("snapshot", portfolioID+"@"+date)
	}
	return &snap, nil
}

func (s *stubService) Invalidate(_ context.Context, portfolioID string) error {
	s.invalidated = append(s.invalidated, portfolioID)
	return nil
}

type fixture struct {
	router  http.Handler
	service *stubService
	bus     *events.Bus
}

func setup(t *testing.T) fixture {
	t.Helper()
	service := &stubService{
		series: func(portfolio domain.Portfolio, from, to string) (*performance.Series, error) {
			if err := portfolio.Validate(); err != nil {
				return nil, err
			}
			return &performance.Series{Portfolio: portfolio, From: from, To: to, TWR: decimal.RequireFromString("0.105")}, nil
		},
		snapshots: map[string]domain.CachedSnapshot{
			"P1@2024-01-02": {PortfolioID: "P1", ValuationDate: "2024-01-02", MarketValue: decimal.RequireFromString("2100")},
		},
	}
	bus := events.NewBus(zerolog.Nop())
	router := chi.NewRouter()
	NewHandler(service, events.NewManager(bus, zerolog.Nop()), zerolog.Nop()).RegisterRoutes(router)
	return fixture{router: router, service: service, bus: bus}
}

func (f fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleSeries(t *testing.T) {
	f := setup(t)
	portfolio, err := json.Marshal(testingpkg.NewPortfolioFixture())
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/portfolio/performance?from=2024-01-01&to=2024-01-03", string(portfolio))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var series performance.Series
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Equal(t, "2024-01-01", series.From)
	assert.Equal(t, "2024-01-03", series.To)
	assert.Equal(t, "0.105", series.TWR.String())

	// to defaults to today
	rec = f.do(http.MethodPost, "/portfolio/performance?from=2024-01-01", string(portfolio))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Equal(t, domain.Today, series.To)
}

func TestHandleSeries_Errors(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodPost, "/portfolio/performance?from=2024-01-01", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/portfolio/performance?from=2024-01-01", `{"id":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")

	f.service.series = func(domain.Portfolio, string, string) (*performance.Series, error) {
		return nil, domain.NewBusinessError("date range of 400 days exceeds the maximum of 366")
	}
	portfolio, _ := json.Marshal(testingpkg.NewPortfolioFixture())
	rec = f.do(http.MethodPost, "/portfolio/performance?from=2023-01-01", string(portfolio))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleGetSnapshot(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "/performance/P1/snapshots/2024-01-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap domain.CachedSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "2100", snap.MarketValue.String())

	rec = f.do(http.MethodGet, "/performance/P1/snapshots/2024-01-05", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleInvalidatePortfolio(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodDelete, "/performance/P1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"P1"}, f.service.invalidated)
}

func TestHandleInvalidation(t *testing.T) {
	f := setup(t)
	received := make(chan *events.Event, 1)
	f.bus.Subscribe(events.TransactionChanged, func(e *events.Event) { received <- e })

	rec := f.do(http.MethodPost, "/cache/invalidations",
		`{"changeType":"transaction","portfolioId":"P1","fromDate":"2024-01-02"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "TRANSACTION_CHANGED", body["type"])
	assert.NotEmpty(t, body["eventId"])

	f.bus.Wait()
	event := <-received
	data, ok := event.Data.(*events.TransactionChangedData)
	require.True(t, ok)
	assert.Equal(t, "P1", data.PortfolioID)
	assert.Equal(t, "2024-01-02", data.FromDate)
}

func TestHandleInvalidation_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"transaction without portfolio", `{"changeType":"TRANSACTION","fromDate":"2024-01-02"}`},
		{"unknown change type", `{"changeType":"WEATHER","fromDate":"2024-01-02"}`},
		{"bad date", `{"changeType":"PRICE","fromDate":"2nd of January"}`},
		{"missing date", `{"changeType":"FX"}`},
		{"malformed body", `{"changeType":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			rec := f.do(http.MethodPost, "/cache/invalidations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestHandleInvalidation_MarketData(t *testing.T) {
	f := setup(t)
	received := make(chan *events.Event, 2)
	f.bus.Subscribe(events.PriceChanged, func(e *events.Event) { received <- e })
	f.bus.Subscribe(events.FxChanged, func(e *events.Event) { received <- e })

	rec := f.do(http.MethodPost, "/cache/invalidations", `{"changeType":"PRICE","fromDate":"2024-01-02"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = f.do(http.MethodPost, "/cache/invalidations", `{"changeType":"FX","fromDate":"2024-01-03"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.bus.Wait()

	types := map[events.EventType]bool{}
	for i := 0; i < 2; i++ {
		types[(<-received).Type] = true
	}
	assert.True(t, types[events.PriceChanged])
	assert.True(t, types[events.FxChanged])
}

func TestRoutes_CoexistWithValuationRoutes(t *testing.T) {
	router := chi.NewRouter()
	valuationhandlers.NewHandler(nil, zerolog.Nop()).RegisterRoutes(router)
	f := setup(t)
	NewHandler(f.service, nil, zerolog.Nop()).RegisterRoutes(router)

	portfolio, _ := json.Marshal(testingpkg.NewPortfolioFixture())
	req := httptest.NewRequest(http.MethodPost, "/portfolio/performance?from=2024-01-01&to=2024-01-02", bytes.NewReader(portfolio))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var routes []string
	require.NoError(t, chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, method+" "+route)
		return nil
	}))
	assert.Contains(t, routes, "POST /portfolio/positions")
	assert.Contains(t, routes, "POST /portfolio/performance")
	assert.Contains(t, routes, "POST /cache/invalidations")
}
