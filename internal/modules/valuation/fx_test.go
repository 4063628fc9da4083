package valuation

import (
	"testing"

	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCollectPairs(t *testing.T) {
	portfolio := domain.Portfolio{ID: "P1", Currency: domain.CurrencyUSD, Base: domain.CurrencyNZD}
	positions := domain.NewPositions(portfolio, "2024-01-31")
	positions.Get(domain.Asset{ID: "ASX:BHP", Currency: domain.CurrencyAUD})
	positions.Get(domain.Asset{ID: "NASDAQ:MSFT", Currency: domain.CurrencyUSD})
	positions.Get(domain.Asset{ID: "ASX:CBA", Currency: domain.CurrencyAUD})
	positions.Get(domain.CashAsset(domain.CurrencyNZD))

	pairs := CollectPairs(positions)

	assert.Equal(t, []domain.CurrencyPair{
		{From: domain.CurrencyAUD, To: domain.CurrencyNZD},
		{From: domain.CurrencyAUD, To: domain.CurrencyUSD},
		{From: domain.CurrencyNZD, To: domain.CurrencyUSD},
		{From: domain.CurrencyUSD, To: domain.CurrencyNZD},
	}, pairs)
}

func TestCollectPairs_SingleCurrency(t *testing.T) {
	portfolio := domain.Portfolio{ID: "P1", Currency: domain.CurrencyUSD, Base: domain.CurrencyUSD}
	positions := domain.NewPositions(portfolio, "2024-01-31")
	positions.Get(domain.Asset{ID: "NASDAQ:MSFT", Currency: domain.CurrencyUSD})

	assert.Empty(t, CollectPairs(positions))
}

func TestRateFor(t *testing.T) {
	rates := map[domain.CurrencyPair]decimal.Decimal{
		{From: domain.CurrencyUSD, To: domain.CurrencyNZD}: d("1.6"),
		{From: domain.CurrencyAUD, To: domain.CurrencyNZD}: d("0"),
	}

	rate, ok := rateFor(rates, domain.CurrencyUSD, domain.CurrencyNZD)
	assert.True(t, ok)
	assert.Equal(t, "1.6", rate.String())

	rate, ok = rateFor(rates, domain.CurrencyEUR, domain.CurrencyEUR)
	assert.True(t, ok)
	assert.Equal(t, "1", rate.String())

	_, ok = rateFor(rates, domain.CurrencyAUD, domain.CurrencyNZD)
	assert.False(t, ok)

	_, ok = rateFor(rates, domain.CurrencyGBP, domain.CurrencyNZD)
	assert.False(t, ok)
}

func TestConvertPrice(t *testing.T) {
	price := domain.PriceData{Date: "2024-01-31", Open: d("10"), Close: d("12"), PreviousClose: d("11")}

	converted := convertPrice(price, d("2"))

	assert.Equal(t, "2024-01-31", converted.Date)
	assert.Equal(t, "20", converted.Open.String())
	assert.Equal(t, "24", converted.Close.String())
	assert.Equal(t, "22", converted.PreviousClose.String())
	assert.Equal(t, "12", price.Close.String())
}
