package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/valuator/internal/clients/alphavantage"
	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// crossCurrency is the leg used when no direct rate exists
const crossCurrency domain.Currency = "USD"

// RateStore reads rates entered through the market data API
type RateStore interface {
	FindRates(ctx context.Context, pairs []domain.CurrencyPair, date string) (map[domain.CurrencyPair]decimal.Decimal, error)
}

// LatestRateProvider serves current rates only
type LatestRateProvider interface {
	GetRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// ExchangeRateService implements domain.FxSource. Each pair is looked up in
// stored rates, then the latest-rate API (for the current date only), then
// the Alpha Vantage FX series, and finally crossed through USD.
type ExchangeRateService struct {
	stored   RateStore
	latest   LatestRateProvider
	provider alphavantage.ClientInterface
	now      func() time.Time
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// NewExchangeRateService creates a new exchange rate service. latest and
// provider may be nil.
func NewExchangeRateService(
	stored RateStore,
	latest LatestRateProvider,
	provider alphavantage.ClientInterface,
	now func() time.Time,
	m *metrics.Registry,
	log zerolog.Logger,
) *ExchangeRateService {
	if now == nil {
		now = time.Now
	}
	return &ExchangeRateService{
		stored:   stored,
		latest:   latest,
		provider: provider,
		now:      now,
		metrics:  m,
		log:      log.With().Str("service", "exchange_rate").Logger(),
	}
}

// GetRates returns a rate for every pair or an error naming the first pair
// no source could serve
func (s *ExchangeRateService) GetRates(ctx context.Context, pairs []domain.CurrencyPair, date string) (map[domain.CurrencyPair]decimal.Decimal, error) {
	result := make(map[domain.CurrencyPair]decimal.Decimal, len(pairs))
	if len(pairs) == 0 {
		return result, nil
	}

	stored, err := s.stored.FindRates(ctx, pairs, date)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored rates: %w", err)
	}
	for pair, rate := range stored {
		result[pair] = rate
	}

	var missing []domain.CurrencyPair
	seen := make(map[domain.CurrencyPair]bool)
	for _, pair := range pairs {
		if _, ok := result[pair]; ok || seen[pair] {
			continue
		}
		seen[pair] = true
		missing = append(missing, pair)
	}
	if len(missing) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(providerConcurrency)
	for _, pair := range missing {
		pair := pair
		g.Go(func() error {
			rate, err := s.resolve(gctx, pair, date)
			if err != nil {
				return err
			}
			mu.Lock()
			result[pair] = rate
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ExchangeRateService) resolve(ctx context.Context, pair domain.CurrencyPair, date string) (decimal.Decimal, error) {
	if rate, ok := s.leg(ctx, pair, date); ok {
		return rate, nil
	}
	if pair.From != crossCurrency && pair.To != crossCurrency {
		first, ok1 := s.leg(ctx, domain.CurrencyPair{From: pair.From, To: crossCurrency}, date)
		if ok1 {
			if second, ok2 := s.leg(ctx, domain.CurrencyPair{From: crossCurrency, To: pair.To}, date); ok2 {
				return first.Mul(second).Round(domain.RateScale), nil
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("fx rate %s: %w", pair, err)
	}
	return decimal.Zero, domain.NewBusinessError("no fx rate for %s on %s", pair, date)
}

// leg finds a single pair without crossing
func (s *ExchangeRateService) leg(ctx context.Context, pair domain.CurrencyPair, date string) (decimal.Decimal, bool) {
	if pair.IsIdentity() {
		return domain.One, true
	}
	if ctx.Err() != nil {
		return decimal.Zero, false
	}

	stored, err := s.stored.FindRates(ctx, []domain.CurrencyPair{pair}, date)
	if err == nil {
		if rate, ok := stored[pair]; ok {
			return rate, true
		}
	}

	if s.latest != nil && date >= s.now().Format(domain.DateLayout) {
		rate, err := s.latest.GetRate(ctx, string(pair.From), string(pair.To))
		s.metrics.ProviderRequest("exchangerate", err)
		if err == nil && rate.IsPositive() {
			return rate, true
		}
		if err != nil {
			s.log.Debug().Err(err).Str("pair", pair.String()).Msg("Latest rate lookup failed")
		}
	}

	if s.provider != nil {
		bars, err := s.provider.FxSeries(ctx, string(pair.From), string(pair.To))
		var notFound alphavantage.ErrSymbolNotFound
		if errors.As(err, &notFound) {
			err = nil
		}
		s.metrics.ProviderRequest("alphavantage", err)
		if err != nil {
			s.log.Warn().Err(err).Str("pair", pair.String()).Msg("FX series lookup failed")
			return decimal.Zero, false
		}
		if rate, ok := rateFromBars(bars, date); ok {
			return rate, true
		}
	}
	return decimal.Zero, false
}

// rateFromBars picks the close of the last bar on or before date
func rateFromBars(bars []alphavantage.FxBar, date string) (decimal.Decimal, bool) {
	target, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return decimal.Zero, false
	}
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Date > date {
			continue
		}
		barDate, err := time.Parse(domain.DateLayout, bars[i].Date)
		if err != nil || target.Sub(barDate) > maxPriceStaleness || !bars[i].Close.IsPositive() {
			return decimal.Zero, false
		}
		return bars[i].Close, true
	}
	return decimal.Zero, false
}
