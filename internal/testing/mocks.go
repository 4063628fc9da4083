package testing

import (
	"context"
	"sort"
	"sync"

	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
)

// MockTransactionSource is an in-memory domain.TransactionSource
type MockTransactionSource struct {
	mu    sync.RWMutex
	trns  []domain.Transaction
	err   error
	calls []domain.TrnQuery
}

// NewMockTransactionSource creates a mock holding trns
func NewMockTransactionSource(trns ...domain.Transaction) *MockTransactionSource {
	return &MockTransactionSource{trns: trns}
}

// SetTransactions replaces the transactions to return
func (m *MockTransactionSource) SetTransactions(trns []domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trns = trns
}

// SetError sets the error to return
func (m *MockTransactionSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the queries received so far
func (m *MockTransactionSource) Calls() []domain.TrnQuery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.TrnQuery(nil), m.calls...)
}

// Transactions filters the held transactions by the query
func (m *MockTransactionSource) Transactions(_ context.Context, query domain.TrnQuery) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, query)
	if m.err != nil {
		return nil, m.err
	}
	var result []domain.Transaction
	for _, trn := range m.trns {
		if query.PortfolioID != "" && trn.PortfolioID != "" && trn.PortfolioID != query.PortfolioID {
			continue
		}
		if query.AssetID != "" && trn.Asset.ID != query.AssetID {
			continue
		}
		if query.ToDate != "" && trn.TradeDate > query.ToDate {
			continue
		}
		result = append(result, trn)
	}
	return result, nil
}

// MockPriceSource is an in-memory domain.PriceSource. Prices are keyed by
// asset id and apply to any date unless set with SetPriceOn.
type MockPriceSource struct {
	mu         sync.RWMutex
	prices     map[string]domain.PriceData
	dated      map[string]map[string]domain.PriceData
	err        error
	partialErr error
	block      bool
	calls      int
}

// NewMockPriceSource creates an empty mock price source
func NewMockPriceSource() *MockPriceSource {
	return &MockPriceSource{
		prices: make(map[string]domain.PriceData),
		dated:  make(map[string]map[string]domain.PriceData),
	}
}

// SetClose sets a close price for assetID on every date
func (m *MockPriceSource) SetClose(assetID string, close decimal.Decimal) {
	m.SetPrice(assetID, domain.PriceData{Close: close})
}

// SetPrice sets the full price data for assetID on every date
func (m *MockPriceSource) SetPrice(assetID string, price domain.PriceData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[assetID] = price
}

// SetPriceOn sets the price data for assetID on date only
func (m *MockPriceSource) SetPriceOn(assetID, date string, price domain.PriceData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dated[date] == nil {
		m.dated[date] = make(map[string]domain.PriceData)
	}
	m.dated[date][assetID] = price
}

// SetError sets the error to return
func (m *MockPriceSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetPartialError makes GetPrices return the prices it holds together with
// err, as a source does when only some lookups failed
func (m *MockPriceSource) SetPartialError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partialErr = err
}

// SetBlocking makes GetPrices wait for its context to end
func (m *MockPriceSource) SetBlocking(block bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = block
}

// CallCount returns how many times GetPrices was called
func (m *MockPriceSource) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// GetPrices returns the held prices for assets
func (m *MockPriceSource) GetPrices(ctx context.Context, assets []domain.Asset, date string) (map[string]domain.PriceData, error) {
	m.mu.Lock()
	m.calls++
	block, err := m.block, m.err
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]domain.PriceData, len(assets))
	for _, a := range assets {
		if price, ok := m.dated[date][a.ID]; ok {
			result[a.ID] = withDate(price, date)
			continue
		}
		if price, ok := m.prices[a.ID]; ok {
			result[a.ID] = withDate(price, date)
		}
	}
	return result, m.partialErr
}

func withDate(price domain.PriceData, date string) domain.PriceData {
	if price.Date == "" {
		price.Date = date
	}
	return price
}

// MockFxSource is an in-memory domain.FxSource. Inverse rates are derived
// from the ones set.
type MockFxSource struct {
	mu    sync.RWMutex
	rates map[domain.CurrencyPair]decimal.Decimal
	err   error
	block bool
	calls []string
}

// NewMockFxSource creates an empty mock fx source
func NewMockFxSource() *MockFxSource {
	return &MockFxSource{rates: make(map[domain.CurrencyPair]decimal.Decimal)}
}

// SetRate sets the rate converting from into to
func (m *MockFxSource) SetRate(from, to domain.Currency, rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[domain.CurrencyPair{From: from, To: to}] = rate
}

// SetError sets the error to return
func (m *MockFxSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetBlocking makes GetRates wait for its context to end
func (m *MockFxSource) SetBlocking(block bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = block
}

// Dates returns the dates rates were requested for, sorted
func (m *MockFxSource) Dates() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dates := append([]string(nil), m.calls...)
	sort.Strings(dates)
	return dates
}

// GetRates returns the held rates for pairs. A pair with no rate is an error.
func (m *MockFxSource) GetRates(ctx context.Context, pairs []domain.CurrencyPair, date string) (map[domain.CurrencyPair]decimal.Decimal, error) {
	m.mu.Lock()
	m.calls = append(m.calls, date)
	block, err := m.block, m.err
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[domain.CurrencyPair]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		if pair.IsIdentity() {
			result[pair] = domain.One
			continue
		}
		if rate, ok := m.rates[pair]; ok {
			result[pair] = rate
			continue
		}
		if rate, ok := m.rates[pair.Inverse()]; ok && !rate.IsZero() {
			result[pair] = domain.One.DivRound(rate, 12)
			continue
		}
		return nil, domain.NewBusinessError("no fx rate for %s on %s", pair, date)
	}
	return result, nil
}
