package accumulation

import (
	"testing"
	"time"

	"github.com/aristath/valuator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
}

func holding(t *testing.T, qty string) *domain.Position {
	t.Helper()
	position, err := NewAccumulator().Accumulate(buy(msft, "2024-01-02", qty, "1000"), usdPortfolio, nil)
	require.NoError(t, err)
	return position
}

func dividendEvent() CorporateEvent {
	return CorporateEvent{
		ID:         "EV1",
		Type:       domain.TrnDividend,
		Asset:      msft,
		RecordDate: "2024-05-15",
		PayDate:    "2024-06-13",
		Rate:       d("0.2625"),
	}
}

func TestEventResolver_DividendWithTax(t *testing.T) {
	resolver := NewEventResolver(TaxRates{domain.CurrencyUSD: d("0.30")}, fixedNow)

	trn, err := resolver.Resolve(dividendEvent(), usdPortfolio, holding(t, "80"))
	require.NoError(t, err)

	assert.Equal(t, domain.TrnDividend, trn.Type)
	assert.Equal(t, "EV1:P1", trn.ID)
	assert.Equal(t, "2024-06-13", trn.TradeDate)
	assert.True(t, d("80").Equal(trn.Quantity))
	assert.True(t, d("14.70").Equal(trn.TradeAmount), "net %s", trn.TradeAmount)
	assert.True(t, d("6.30").Equal(trn.Tax), "tax %s", trn.Tax)
	assert.True(t, d("0.2625").Equal(trn.Price))
}

func TestEventResolver_DividendWithoutTaxRate(t *testing.T) {
	resolver := NewEventResolver(nil, fixedNow)

	trn, err := resolver.Resolve(dividendEvent(), usdPortfolio, holding(t, "80"))
	require.NoError(t, err)

	assert.True(t, d("21").Equal(trn.TradeAmount))
	assert.True(t, trn.Tax.IsZero())
}

func TestEventResolver_Split(t *testing.T) {
	event := dividendEvent()
	event.Type = domain.TrnSplit
	event.Rate = d("10")

	trn, err := NewEventResolver(nil, fixedNow).Resolve(event, usdPortfolio, holding(t, "10"))
	require.NoError(t, err)

	assert.Equal(t, domain.TrnSplit, trn.Type)
	assert.True(t, d("10").Equal(trn.Quantity))
}

func TestEventResolver_ZeroQuantityIsIgnored(t *testing.T) {
	position := holding(t, "10")
	_, err := NewAccumulator().Accumulate(sell(msft, "2024-02-01", "10", "1100"), usdPortfolio, position)
	require.NoError(t, err)

	trn, err := NewEventResolver(nil, fixedNow).Resolve(dividendEvent(), usdPortfolio, position)
	require.NoError(t, err)
	assert.Equal(t, domain.TrnIgnore, trn.Type)

	trn, err = NewEventResolver(nil, fixedNow).Resolve(dividendEvent(), usdPortfolio, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TrnIgnore, trn.Type)
}

func TestEventResolver_ForwardDatedIsIgnored(t *testing.T) {
	event := dividendEvent()
	event.PayDate = "2024-07-15"

	trn, err := NewEventResolver(nil, fixedNow).Resolve(event, usdPortfolio, holding(t, "80"))
	require.NoError(t, err)
	assert.Equal(t, domain.TrnIgnore, trn.Type)
	assert.Equal(t, "event is forward dated", trn.Comments)
}

func TestEventResolver_RejectsInvalidEvents(t *testing.T) {
	resolver := NewEventResolver(nil, fixedNow)

	wrongType := dividendEvent()
	wrongType.Type = domain.TrnBuy
	_, err := resolver.Resolve(wrongType, usdPortfolio, holding(t, "10"))
	assert.True(t, domain.IsInvalidInput(err))

	badDate := dividendEvent()
	badDate.RecordDate = "15/05/2024"
	_, err = resolver.Resolve(badDate, usdPortfolio, holding(t, "10"))
	assert.True(t, domain.IsInvalidInput(err))

	noRate := dividendEvent()
	noRate.Rate = d("0")
	_, err = resolver.Resolve(noRate, usdPortfolio, holding(t, "10"))
	assert.True(t, domain.IsInvalidInput(err))
}

func TestParseTaxRates(t *testing.T) {
	rates, err := ParseTaxRates("usd=0.30, AUD=0.15,,")
	require.NoError(t, err)

	assert.True(t, d("0.30").Equal(rates.DividendTaxRate(domain.CurrencyUSD)))
	assert.True(t, d("0.15").Equal(rates.DividendTaxRate(domain.CurrencyAUD)))
	assert.True(t, rates.DividendTaxRate(domain.CurrencyEUR).IsZero())

	_, err = ParseTaxRates("USD")
	assert.Error(t, err)
	_, err = ParseTaxRates("USD=1.5")
	assert.Error(t, err)
	_, err = ParseTaxRates("QQQ=0.1")
	assert.Error(t, err)
}
