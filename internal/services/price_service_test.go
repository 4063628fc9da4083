package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/valuator/internal/clientdata"
	"github.com/aristath/valuator/internal/clients/alphavantage"
	"github.com/aristath/valuator/internal/domain"
	testingpkg "github.com/aristath/valuator/internal/testing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves canned Alpha Vantage series
type fakeProvider struct {
	mu    sync.Mutex
	daily map[string][]alphavantage.DailyBar
	fx    map[string][]alphavantage.FxBar
	err   error
	calls map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		daily: make(map[string][]alphavantage.DailyBar),
		fx:    make(map[string][]alphavantage.FxBar),
		calls: make(map[string]int),
	}
}

func (f *fakeProvider) DailySeries(_ context.Context, symbol string) ([]alphavantage.DailyBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if f.err != nil {
		return nil, f.err
	}
	bars, ok := f.daily[symbol]
	if !ok {
		return nil, alphavantage.ErrSymbolNotFound{Symbol: symbol}
	}
	return bars, nil
}

func (f *fakeProvider) FxSeries(_ context.Context, from, to string) ([]alphavantage.FxBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := from + ":" + to
	f.calls[key]++
	if f.err != nil {
		return nil, f.err
	}
	bars, ok := f.fx[key]
	if !ok {
		return nil, alphavantage.ErrSymbolNotFound{Symbol: key}
	}
	return bars, nil
}

func (f *fakeProvider) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProvider) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func bar(date, close string) alphavantage.DailyBar {
	return alphavantage.DailyBar{
		Date:             date,
		Close:            decimal.RequireFromString(close),
		SplitCoefficient: decimal.NewFromInt(1),
	}
}

func newClientDataCache(t *testing.T) *clientdata.Repository {
	t.Helper()
	schema, err := testingpkg.LoadTestSchema("client_data")
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(schema)
	require.NoError(t, err)
	return clientdata.NewRepository(db)
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
}

var (
	msft = testingpkg.NewAssetFixture("MSFT", "USD")
	aapl = testingpkg.NewAssetFixture("AAPL", "USD")
)

func TestPriceService_StoredPricesWin(t *testing.T) {
	stored := testingpkg.NewMockPriceSource()
	stored.SetClose(msft.ID, decimal.NewFromInt(100))
	provider := newFakeProvider()
	provider.daily["MSFT"] = []alphavantage.DailyBar{bar("2024-03-15", "999")}

	svc := NewPriceService(stored, provider, nil, fixedNow, nil, zerolog.Nop())
	prices, err := svc.GetPrices(context.Background(), []domain.Asset{msft}, "2024-03-15")
	require.NoError(t, err)

	assert.Equal(t, "100", prices[msft.ID].Close.String())
	assert.Zero(t, provider.callCount("MSFT"))
}

func TestPriceService_ProviderFillsMissing(t *testing.T) {
	provider := newFakeProvider()
	split := bar("2024-03-15", "110")
	split.Dividend = decimal.RequireFromString("0.75")
	split.SplitCoefficient = decimal.NewFromInt(2)
	provider.daily["MSFT"] = []alphavantage.DailyBar{
		bar("2024-03-13", "100"),
		bar("2024-03-14", "105"),
		split,
		bar("2024-03-18", "120"),
	}

	svc := NewPriceService(testingpkg.NewMockPriceSource(), provider, nil, fixedNow, nil, zerolog.Nop())
	prices, err := svc.GetPrices(context.Background(), []domain.Asset{msft}, "2024-03-15")
	require.NoError(t, err)

	p := prices[msft.ID]
	assert.Equal(t, "110", p.Close.String())
	assert.Equal(t, "105", p.PreviousClose.String())
	assert.Equal(t, "0.75", p.Dividend.String())
	assert.Equal(t, "2", p.Split.String())
}

func TestPriceService_WeekendUsesLastBar(t *testing.T) {
	provider := newFakeProvider()
	provider.daily["MSFT"] = []alphavantage.DailyBar{bar("2024-03-14", "105"), bar("2024-03-15", "110")}

	svc := NewPriceService(testingpkg.NewMockPriceSource(), provider, nil, fixedNow, nil, zerolog.Nop())
	prices, err := svc.GetPrices(context.Background(), []domain.Asset{msft}, "2024-03-17")
	require.NoError(t, err)

	p := prices[msft.ID]
	assert.Equal(t, "110", p.Close.String())
	assert.Equal(t, "2024-03-15", p.Date)
	// Corporate actions stay on their own day
	assert.True(t, p.Dividend.IsZero())
}

func TestPriceService_UnknownAndStaleAreAbsent(t *testing.T) {
	provider := newFakeProvider()
	provider.daily["AAPL"] = []alphavantage.DailyBar{bar("2024-01-02", "180")}

	svc := NewPriceService(testingpkg.NewMockPriceSource(), provider, nil, fixedNow, nil, zerolog.Nop())
	prices, err := svc.GetPrices(context.Background(), []domain.Asset{msft, aapl}, "2024-03-15")
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestPriceService_SkipsCash(t *testing.T) {
	stored := testingpkg.NewMockPriceSource()
	svc := NewPriceService(stored, newFakeProvider(), nil, fixedNow, nil, zerolog.Nop())

	prices, err := svc.GetPrices(context.Background(), []domain.Asset{domain.CashAsset("USD")}, "2024-03-15")
	require.NoError(t, err)
	assert.Empty(t, prices)
	assert.Zero(t, stored.CallCount())
}

func TestPriceService_CachesResolvedPrices(t *testing.T) {
	provider := newFakeProvider()
	provider.daily["MSFT"] = []alphavantage.DailyBar{bar("2024-03-14", "105")}
	cache := newClientDataCache(t)

	svc := NewPriceService(testingpkg.NewMockPriceSource(), provider, cache, fixedNow, nil, zerolog.Nop())
	_, err := svc.GetPrices(context.Background(), []domain.Asset{msft}, "2024-03-14")
	require.NoError(t, err)
	prices, err := svc.GetPrices(context.Background(), []domain.Asset{msft}, "2024-03-14")
	require.NoError(t, err)

	assert.Equal(t, "105", prices[msft.ID].Close.String())
	assert.Equal(t, 1, provider.callCount("MSFT"))
}

func TestPriceService_ProviderFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.setError(errors.New("connection reset"))
	stored := testingpkg.NewMockPriceSource()
	stored.SetClose(aapl.ID, decimal.NewFromInt(180))

	svc := NewPriceService(stored, provider, nil, fixedNow, nil, zerolog.Nop())
	prices, err := svc.GetPrices(context.Background(), []domain.Asset{msft, aapl}, "2024-03-15")

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Contains(t, err.Error(), msft.ID)
	assert.Equal(t, "180", prices[aapl.ID].Close.String())
}

func TestPriceService_ServesStaleCacheWhenProviderFails(t *testing.T) {
	provider := newFakeProvider()
	provider.setError(errors.New("connection reset"))
	cache := newClientDataCache(t)
	require.NoError(t, cache.Store(clientdata.TablePrices, "NASDAQ:MSFT@2024-03-14",
		domain.PriceData{Date: "2024-03-14", Close: decimal.NewFromInt(104)}, -time.Hour))

	svc := NewPriceService(testingpkg.NewMockPriceSource(), provider, cache, fixedNow, nil, zerolog.Nop())
	prices, err := svc.GetPrices(context.Background(), []domain.Asset{msft}, "2024-03-14")
	require.NoError(t, err)
	assert.Equal(t, "104", prices[msft.ID].Close.String())
	assert.Equal(t, 1, provider.callCount("MSFT"))
}

func TestPriceService_StoredFailureIsReturned(t *testing.T) {
	stored := testingpkg.NewMockPriceSource()
	stored.SetError(errors.New("disk I/O error"))

	svc := NewPriceService(stored, nil, nil, fixedNow, nil, zerolog.Nop())
	_, err := svc.GetPrices(context.Background(), []domain.Asset{msft}, "2024-03-15")
	assert.ErrorContains(t, err, "disk I/O error")
}

func TestProviderSymbol(t *testing.T) {
	assert.Equal(t, "MSFT", ProviderSymbol(msft))
	assert.Equal(t, "TSCO.LON", ProviderSymbol(domain.Asset{Code: "TSCO", Market: "LSE"}))
	assert.Equal(t, "BHP", ProviderSymbol(domain.Asset{Code: "BHP", Market: "ASX"}))
}
