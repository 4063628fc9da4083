package di

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/valuator/internal/config"
	"github.com/aristath/valuator/internal/modules/performance"
	"github.com/aristath/valuator/internal/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir:                   t.TempDir(),
		Port:                      8001,
		PriceTimeout:              5 * time.Second,
		FxTimeout:                 time.Second,
		PerformanceCache:          config.CacheSQLite,
		PerformanceMaxDays:        366,
		ExchangeRateBaseURL:       "http://127.0.0.1:1/latest",
		DividendTaxRates:          "USD=0.30",
		ClientDataCleanupSchedule: "0 3 * * *",
		WALCheckpointSchedule:     "*/30 * * * *",
	}
}

func TestWire(t *testing.T) {
	container, jobs, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.ValuationService)
	assert.NotNil(t, container.PerformanceService)
	assert.NotNil(t, container.CorporateService)
	assert.IsType(t, &performance.SQLiteCache{}, container.PerformanceCache)
	assert.Len(t, container.Routes(), 5)

	require.NotNil(t, jobs)
	assert.NoError(t, jobs.WALCheckpoint.Run())
	assert.NoError(t, jobs.ClientDataCleanup.Run())
}

func TestWire_NoopCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.PerformanceCache = config.CacheNone

	container, _, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.IsType(t, &performance.NoopCache{}, container.PerformanceCache)
}

func TestWire_BadTaxRates(t *testing.T) {
	cfg := testConfig(t)
	cfg.DividendTaxRates = "USD=2"

	_, _, err := Wire(cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "dividend tax rates")
}

// Records a transaction and a stored price through the HTTP surface, then
// values the portfolio against them.
func TestWire_EndToEnd(t *testing.T) {
	container, _, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	srv := server.New(server.Config{
		Log:       zerolog.Nop(),
		DevMode:   true,
		Databases: container.Databases(),
		EventBus:  container.EventBus,
		Modules:   container.Routes(),
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	portfolio := `{"id":"P1","code":"P1","currency":"USD","base":"USD"}`
	rec := do(http.MethodPost, "/trns", `[{
		"portfolioId": "P1",
		"trnType": "BUY",
		"asset": {"id": "NASDAQ:MSFT", "code": "MSFT", "market": "NASDAQ", "currency": "USD"},
		"tradeDate": "2024-01-02",
		"quantity": "10",
		"price": "100",
		"tradeAmount": "1000",
		"tradeCurrency": "USD"
	}]`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(http.MethodPost, "/prices", `[{"assetId":"NASDAQ:MSFT","date":"2024-01-05","close":"120"}]`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(http.MethodPost, "/portfolio/positions?valuationDate=2024-01-05", portfolio)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Partial   bool `json:"partial"`
		Positions []struct {
			Asset struct {
				ID string `json:"id"`
			} `json:"asset"`
			MoneyValues map[string]struct {
				MarketValue string `json:"marketValue"`
			} `json:"moneyValues"`
		} `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Partial)
	require.Len(t, body.Positions, 1)
	assert.Equal(t, "NASDAQ:MSFT", body.Positions[0].Asset.ID)
	assert.Equal(t, "1200", body.Positions[0].MoneyValues["TRADE"].MarketValue)
}
