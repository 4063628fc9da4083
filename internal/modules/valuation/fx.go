package valuation

import (
	"sort"

	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
)

// tradeCurrency is the currency a position's TRADE frame is held in
func tradeCurrency(p *domain.Position) domain.Currency {
	if mv := p.Values(domain.FrameTrade); mv != nil && mv.Currency != "" {
		return mv.Currency
	}
	return p.Asset.Currency
}

// CollectPairs returns the distinct trade->portfolio and trade->base pairs
// needed to value positions, sorted, with identity pairs dropped
func CollectPairs(positions *domain.Positions) []domain.CurrencyPair {
	seen := make(map[domain.CurrencyPair]struct{})
	var pairs []domain.CurrencyPair
	add := func(pair domain.CurrencyPair) {
		if pair.IsIdentity() || pair.From == "" || pair.To == "" {
			return
		}
		if _, ok := seen[pair]; ok {
			return
		}
		seen[pair] = struct{}{}
		pairs = append(pairs, pair)
	}

	for _, p := range positions.List() {
		trade := tradeCurrency(p)
		add(domain.CurrencyPair{From: trade, To: positions.Portfolio.Currency})
		add(domain.CurrencyPair{From: trade, To: positions.Portfolio.Base})
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })
	return pairs
}

// rateFor looks up from->to in rates. Identity pairs are always 1.
func rateFor(rates map[domain.CurrencyPair]decimal.Decimal, from, to domain.Currency) (decimal.Decimal, bool) {
	if from == to {
		return domain.One, true
	}
	rate, ok := rates[domain.CurrencyPair{From: from, To: to}]
	if ok && rate.IsPositive() {
		return rate, true
	}
	return decimal.Zero, false
}

// convertPrice expresses a trade currency price snapshot at rate
func convertPrice(price domain.PriceData, rate decimal.Decimal) *domain.PriceData {
	converted := price
	converted.Open = price.Open.Mul(rate)
	converted.High = price.High.Mul(rate)
	converted.Low = price.Low.Mul(rate)
	converted.Close = price.Close.Mul(rate)
	converted.PreviousClose = price.PreviousClose.Mul(rate)
	converted.Dividend = price.Dividend.Mul(rate)
	return &converted
}
