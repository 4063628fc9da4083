package performance

import (
	"context"
	"fmt"
	"sort"

	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

// externalFlows is money deposited (positive) or withdrawn (negative) per
// day, in the portfolio currency
type externalFlows struct {
	byDate     map[string]decimal.Decimal
	dates      []string
	cumulative []decimal.Decimal
}

func (f externalFlows) on(date string) decimal.Decimal {
	if amount, ok := f.byDate[date]; ok {
		return amount
	}
	return decimal.Zero
}

// upTo returns the net contributions made on or before date
func (f externalFlows) upTo(date string) decimal.Decimal {
	i := sort.Search(len(f.dates), func(i int) bool { return f.dates[i] > date })
	if i == 0 {
		return decimal.Zero
	}
	return f.cumulative[i-1]
}

// externalFlows loads deposits and withdrawals up to to. Flows without a
// portfolio rate are converted at the rate of their trade date.
func (s *PerformanceService) externalFlows(ctx context.Context, portfolio domain.Portfolio, to string) (externalFlows, error) {
	flows := externalFlows{byDate: make(map[string]decimal.Decimal)}
	if s.trns == nil {
		return flows, nil
	}

	trns, err := s.trns.Transactions(ctx, domain.TrnQuery{PortfolioID: portfolio.ID, ToDate: to})
	if err != nil {
		return flows, fmt.Errorf("failed to load transactions for %s: %w", portfolio.ID, err)
	}

	var external []domain.Transaction
	wanted := make(map[string]map[domain.CurrencyPair]struct{})
	for _, trn := range trns {
		if !trn.IsConfirmed() || trn.TradeDate > to {
			continue
		}
		if trn.Type != domain.TrnDeposit && trn.Type != domain.TrnWithdrawal {
			continue
		}
		external = append(external, trn)
		if needsFlowRate(trn, portfolio) {
			if wanted[trn.TradeDate] == nil {
				wanted[trn.TradeDate] = make(map[domain.CurrencyPair]struct{})
			}
			wanted[trn.TradeDate][domain.CurrencyPair{From: trn.TradeCurrency, To: portfolio.Currency}] = struct{}{}
		}
	}

	rates, err := s.flowRates(ctx, wanted)
	if err != nil {
		return flows, err
	}

	for _, trn := range external {
		rate := domain.One
		if needsFlowRate(trn, portfolio) {
			pair := domain.CurrencyPair{From: trn.TradeCurrency, To: portfolio.Currency}
			r, ok := rates[trn.TradeDate][pair]
			if !ok || !r.IsPositive() {
				return flows, domain.NewBusinessError("missing fx rate %s on %s", pair, trn.TradeDate)
			}
			rate = r
		} else if trn.TradeCurrency != portfolio.Currency && !trn.TradePortfolioRate.IsZero() {
			rate = trn.TradePortfolioRate
		}

		amount := flowAmount(trn).Mul(rate)
		if trn.Type == domain.TrnWithdrawal {
			amount = amount.Neg()
		}
		flows.byDate[trn.TradeDate] = flows.on(trn.TradeDate).Add(amount)
	}

	for date := range flows.byDate {
		flows.dates = append(flows.dates, date)
	}
	sort.Strings(flows.dates)
	running := decimal.Zero
	for _, date := range flows.dates {
		running = running.Add(flows.byDate[date])
		flows.cumulative = append(flows.cumulative, running)
	}
	return flows, nil
}

func (s *PerformanceService) flowRates(ctx context.Context, wanted map[string]map[domain.CurrencyPair]struct{}) (map[string]map[domain.CurrencyPair]decimal.Decimal, error) {
	result := make(map[string]map[domain.CurrencyPair]decimal.Decimal, len(wanted))
	if len(wanted) == 0 {
		return result, nil
	}
	if s.fx == nil {
		return nil, domain.NewBusinessError("cash flows need fx rates and no fx source is configured")
	}

	dates := make([]string, 0, len(wanted))
	for date := range wanted {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		pairs := make([]domain.CurrencyPair, 0, len(wanted[date]))
		for pair := range wanted[date] {
			pairs = append(pairs, pair)
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })

		rates, err := s.fx.GetRates(ctx, pairs, date)
		if err != nil {
			return nil, fmt.Errorf("failed to get fx rates for cash flows on %s: %w", date, err)
		}
		result[date] = rates
	}
	return result, nil
}

func needsFlowRate(trn domain.Transaction, portfolio domain.Portfolio) bool {
	return trn.TradeCurrency != "" &&
		trn.TradeCurrency != portfolio.Currency &&
		trn.TradePortfolioRate.IsZero()
}

func flowAmount(trn domain.Transaction) decimal.Decimal {
	if !trn.TradeAmount.IsZero() {
		return trn.TradeAmount.Abs()
	}
	return trn.Quantity.Abs()
}

// TimeWeightedReturn chains daily returns over snapshots, which must be in
// date order. A day's external flow is removed from that day's growth. Days
// following a zero market value are skipped.
func TimeWeightedReturn(snapshots []domain.CachedSnapshot) decimal.Decimal {
	if len(snapshots) < 2 {
		return decimal.Zero
	}

	factors := make([]float64, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].MarketValue
		if prev.IsZero() {
			continue
		}
		growth := snapshots[i].MarketValue.Sub(snapshots[i].ExternalCashFlow).Div(prev)
		factors = append(factors, growth.InexactFloat64())
	}
	if len(factors) == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(floats.Prod(factors) - 1).Round(twrPlaces)
}
