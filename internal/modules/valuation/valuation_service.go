package valuation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/metrics"
	"github.com/aristath/valuator/internal/modules/accumulation"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Query scopes a build to one asset of a portfolio
type Query struct {
	Portfolio domain.Portfolio `json:"portfolio" msgpack:"portfolio"`
	AssetID   string           `json:"assetId" msgpack:"assetId"`
	TradeDate string           `json:"tradeDate" msgpack:"tradeDate"`
}

// ValuationService builds positions from the transaction ledger and values
// them
type ValuationService struct {
	trns        domain.TransactionSource
	fx          domain.FxSource
	accumulator *accumulation.Accumulator
	positions   *PositionValuationService
	now         func() time.Time
	metrics     *metrics.Registry
	log         zerolog.Logger
}

// NewValuationService creates a new valuation service. now defaults to
// time.Now.
func NewValuationService(
	trns domain.TransactionSource,
	fx domain.FxSource,
	accumulator *accumulation.Accumulator,
	positions *PositionValuationService,
	now func() time.Time,
	m *metrics.Registry,
	log zerolog.Logger,
) *ValuationService {
	if now == nil {
		now = time.Now
	}
	if accumulator == nil {
		accumulator = accumulation.NewAccumulator()
	}
	return &ValuationService{
		trns:        trns,
		fx:          fx,
		accumulator: accumulator,
		positions:   positions,
		now:         now,
		metrics:     m,
		log:         log.With().Str("service", "valuation").Logger(),
	}
}

// Build folds the portfolio's transactions up to date into unvalued
// positions. date is "today" or YYYY-MM-DD.
func (s *ValuationService) Build(ctx context.Context, portfolio domain.Portfolio, date string) (*domain.Positions, error) {
	if err := portfolio.Validate(); err != nil {
		return nil, err
	}
	asAt, err := domain.ResolveDate(date, s.now())
	if err != nil {
		return nil, err
	}
	return s.build(ctx, portfolio, domain.TrnQuery{PortfolioID: portfolio.ID, ToDate: asAt}, asAt)
}

// BuildQuery folds the transactions of one asset up to query.TradeDate
func (s *ValuationService) BuildQuery(ctx context.Context, query Query) (*domain.Positions, error) {
	if err := query.Portfolio.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query.AssetID) == "" {
		return nil, domain.InvalidInput("assetId is required")
	}
	asAt, err := domain.ResolveDate(query.TradeDate, s.now())
	if err != nil {
		return nil, err
	}
	return s.build(ctx, query.Portfolio, domain.TrnQuery{
		PortfolioID: query.Portfolio.ID,
		AssetID:     query.AssetID,
		ToDate:      asAt,
	}, asAt)
}

// Value applies market data to already built positions
func (s *ValuationService) Value(ctx context.Context, positions *domain.Positions) (*domain.Positions, error) {
	if positions == nil {
		return nil, domain.InvalidInput("positions are required")
	}
	if err := positions.Portfolio.Validate(); err != nil {
		return nil, err
	}
	return s.positions.Value(ctx, positions, positions.Assets())
}

// Positions builds and values the portfolio as at date
func (s *ValuationService) Positions(ctx context.Context, portfolio domain.Portfolio, date string) (*domain.Positions, error) {
	positions, err := s.Build(ctx, portfolio, date)
	if err != nil {
		return nil, err
	}
	return s.Value(ctx, positions)
}

// Query builds and values one asset of a portfolio
func (s *ValuationService) Query(ctx context.Context, query Query) (*domain.Positions, error) {
	positions, err := s.BuildQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.Value(ctx, positions)
}

func (s *ValuationService) build(ctx context.Context, portfolio domain.Portfolio, query domain.TrnQuery, asAt string) (*domain.Positions, error) {
	started := time.Now()

	if s.trns == nil {
		return nil, fmt.Errorf("no transaction source configured")
	}
	trns, err := s.trns.Transactions(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for %s: %w", portfolio.ID, err)
	}

	trns, err = s.resolveRates(ctx, portfolio, trns, asAt)
	if err != nil {
		return nil, err
	}

	positions := domain.NewPositions(portfolio, asAt)
	if err := s.accumulator.Fold(positions, trns); err != nil {
		s.metrics.ObserveValuation("build", started, err)
		return nil, err
	}
	s.metrics.ObserveValuation("build", started, nil)

	s.log.Debug().
		Str("portfolio", portfolio.ID).
		Str("as_at", asAt).
		Int("transactions", len(trns)).
		Int("positions", positions.Len()).
		Msg("Built positions")

	return positions, nil
}

// resolveRates fills in the FX legs transactions arrived without, one
// lookup per trade date. Transactions after asAt are left alone; the fold
// skips them.
func (s *ValuationService) resolveRates(ctx context.Context, portfolio domain.Portfolio, trns []domain.Transaction, asAt string) ([]domain.Transaction, error) {
	wanted := make(map[string]map[domain.CurrencyPair]struct{})
	for _, trn := range trns {
		if !needsRates(trn, asAt) {
			continue
		}
		for _, pair := range missingPairs(trn, portfolio) {
			if wanted[trn.TradeDate] == nil {
				wanted[trn.TradeDate] = make(map[domain.CurrencyPair]struct{})
			}
			wanted[trn.TradeDate][pair] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return trns, nil
	}
	if s.fx == nil {
		return nil, domain.NewBusinessError("transactions need fx rates and no fx source is configured")
	}

	dates := make([]string, 0, len(wanted))
	for date := range wanted {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	byDate := make(map[string]map[domain.CurrencyPair]decimal.Decimal, len(dates))
	for _, date := range dates {
		pairs := make([]domain.CurrencyPair, 0, len(wanted[date]))
		for pair := range wanted[date] {
			pairs = append(pairs, pair)
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })

		rates, err := s.fx.GetRates(ctx, pairs, date)
		if err != nil {
			return nil, fxError(ctx, err)
		}
		byDate[date] = rates
	}

	resolved := make([]domain.Transaction, len(trns))
	for i, trn := range trns {
		resolved[i] = trn
		rates, ok := byDate[trn.TradeDate]
		if !ok || !needsRates(trn, asAt) {
			continue
		}
		if err := fillRates(&resolved[i], portfolio, rates); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func needsRates(trn domain.Transaction, asAt string) bool {
	if !trn.IsConfirmed() || trn.Type == domain.TrnIgnore {
		return false
	}
	return asAt == "" || trn.TradeDate <= asAt
}

// missingPairs lists the conversions trn needs but does not carry
func missingPairs(trn domain.Transaction, portfolio domain.Portfolio) []domain.CurrencyPair {
	var pairs []domain.CurrencyPair
	trade := trn.TradeCurrency
	if trade == "" {
		return nil
	}
	if trn.TradePortfolioRate.IsZero() && trade != portfolio.Currency {
		pairs = append(pairs, domain.CurrencyPair{From: trade, To: portfolio.Currency})
	}
	if trn.TradeBaseRate.IsZero() && trade != portfolio.Base {
		pairs = append(pairs, domain.CurrencyPair{From: trade, To: portfolio.Base})
	}
	if cash := cashCurrency(trn); cash != "" && trn.TradeCashRate.IsZero() && trade != cash {
		pairs = append(pairs, domain.CurrencyPair{From: trade, To: cash})
	}
	return pairs
}

func fillRates(trn *domain.Transaction, portfolio domain.Portfolio, rates map[domain.CurrencyPair]decimal.Decimal) error {
	lookup := func(to domain.Currency) (decimal.Decimal, error) {
		rate, ok := rateFor(rates, trn.TradeCurrency, to)
		if !ok {
			return decimal.Zero, domain.NewBusinessError("missing fx rate %s:%s on %s", trn.TradeCurrency, to, trn.TradeDate)
		}
		return rate, nil
	}

	var err error
	if trn.TradePortfolioRate.IsZero() && trn.TradeCurrency != portfolio.Currency {
		if trn.TradePortfolioRate, err = lookup(portfolio.Currency); err != nil {
			return err
		}
	}
	if trn.TradeBaseRate.IsZero() && trn.TradeCurrency != portfolio.Base {
		if trn.TradeBaseRate, err = lookup(portfolio.Base); err != nil {
			return err
		}
	}
	if cash := cashCurrency(*trn); cash != "" && trn.TradeCashRate.IsZero() && trn.TradeCurrency != cash {
		if trn.TradeCashRate, err = lookup(cash); err != nil {
			return err
		}
	}
	return nil
}

func cashCurrency(trn domain.Transaction) domain.Currency {
	if trn.CashAsset == nil || trn.CashAmount.IsZero() {
		return ""
	}
	if trn.CashCurrency != "" {
		return trn.CashCurrency
	}
	return trn.CashAsset.Currency
}
