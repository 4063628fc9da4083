package valuation

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// weightPlaces is the rounding applied to position weights
const weightPlaces = 8

// Config holds the fetch budgets for market data
type Config struct {
	PriceTimeout time.Duration
	FxTimeout    time.Duration
}

// DefaultConfig returns the budgets used when none are configured
func DefaultConfig() Config {
	return Config{
		PriceTimeout: 180 * time.Second,
		FxTimeout:    30 * time.Second,
	}
}

// PositionValuationService applies prices and FX rates to built positions
type PositionValuationService struct {
	prices  domain.PriceSource
	fx      domain.FxSource
	gains   Gains
	config  Config
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewPositionValuationService creates a new position valuation service
func NewPositionValuationService(
	prices domain.PriceSource,
	fx domain.FxSource,
	config Config,
	m *metrics.Registry,
	log zerolog.Logger,
) *PositionValuationService {
	defaults := DefaultConfig()
	if config.PriceTimeout <= 0 {
		config.PriceTimeout = defaults.PriceTimeout
	}
	if config.FxTimeout <= 0 {
		config.FxTimeout = defaults.FxTimeout
	}
	return &PositionValuationService{
		prices:  prices,
		fx:      fx,
		config:  config,
		metrics: m,
		log:     log.With().Str("service", "position_valuation").Logger(),
	}
}

// Value prices assets within positions as at positions.AsAt and sets market
// value, gains, weight and IRR on every frame. An empty asset list leaves
// positions untouched.
//
// FX failures fail the valuation. Price failures degrade: Partial is set,
// assets whose prices did arrive are still valued and the rest stay
// unvalued.
func (s *PositionValuationService) Value(ctx context.Context, positions *domain.Positions, assets []domain.Asset) (result *domain.Positions, err error) {
	if positions == nil {
		return nil, domain.InvalidInput("positions are required")
	}
	if len(assets) == 0 {
		return positions, nil
	}
	if _, err := domain.ParseDate(positions.AsAt); err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() { s.metrics.ObserveValuation("value", started, err) }()

	data, err := s.fetch(ctx, positions, assets)
	if err != nil {
		return nil, err
	}
	if data.priceErr != nil {
		s.log.Warn().
			Err(data.priceErr).
			Str("portfolio", positions.Portfolio.ID).
			Str("as_at", positions.AsAt).
			Int("assets", len(assets)).
			Int("priced", len(data.prices)).
			Msg("Price lookup failed, valuing what was priced")
		s.metrics.PartialValuation()
		positions.Partial = true
		if len(data.prices) == 0 {
			positions.ResetTotals()
			return positions, nil
		}
	}

	requested := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		requested[a.ID] = struct{}{}
	}

	for _, p := range positions.List() {
		if _, ok := requested[p.Asset.ID]; !ok {
			continue
		}
		price, ok := priceFor(p.Asset, data.prices, positions.AsAt)
		if !ok {
			s.log.Info().
				Str("asset", p.Asset.ID).
				Str("as_at", positions.AsAt).
				Msg("No price on record, position left unvalued")
			continue
		}
		if err := s.valuePosition(positions, p, price, data.rates); err != nil {
			return nil, err
		}
	}

	positions.ResetTotals()
	s.applyWeights(positions)
	s.applyTotalsIRR(positions)

	s.log.Debug().
		Str("portfolio", positions.Portfolio.ID).
		Str("as_at", positions.AsAt).
		Int("positions", positions.Len()).
		Dur("elapsed", time.Since(started)).
		Msg("Valued positions")

	return positions, nil
}

// marketData is what fetch gathered. priceErr is kept apart so the caller
// can degrade instead of failing.
type marketData struct {
	prices   map[string]domain.PriceData
	rates    map[domain.CurrencyPair]decimal.Decimal
	priceErr error
}

// fetch runs the price and FX lookups concurrently
func (s *PositionValuationService) fetch(ctx context.Context, positions *domain.Positions, assets []domain.Asset) (marketData, error) {
	var data marketData

	toPrice := pricedAssets(assets)
	pairs := CollectPairs(positions)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(toPrice) == 0 || s.prices == nil {
			return nil
		}
		pctx, cancel := context.WithTimeout(gctx, s.config.PriceTimeout)
		defer cancel()
		// A failing source may still hand back the prices it resolved
		data.prices, data.priceErr = s.prices.GetPrices(pctx, toPrice, positions.AsAt)
		return nil
	})
	g.Go(func() error {
		if len(pairs) == 0 {
			return nil
		}
		if s.fx == nil {
			return domain.NewBusinessError("fx rates unavailable: no fx source configured")
		}
		fctx, cancel := context.WithTimeout(gctx, s.config.FxTimeout)
		defer cancel()
		result, err := s.fx.GetRates(fctx, pairs, positions.AsAt)
		if err != nil {
			return fxError(fctx, err)
		}
		for _, pair := range pairs {
			if _, ok := rateFor(result, pair.From, pair.To); !ok {
				return domain.NewBusinessError("missing fx rate %s on %s", pair, positions.AsAt)
			}
		}
		data.rates = result
		return nil
	})

	if err := g.Wait(); err != nil {
		return marketData{}, err
	}
	return data, nil
}

// fxError classifies an FX lookup failure. Deadlines are retryable, anything
// else means the rates do not exist.
func fxError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.TransientError{Op: "fx rates", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &domain.TransientError{Op: "fx rates", Err: err}
	}
	if domain.IsBusiness(err) || domain.IsTransient(err) {
		return err
	}
	return &domain.BusinessError{Message: "fx rates unavailable", Err: err}
}

func (s *PositionValuationService) valuePosition(
	positions *domain.Positions,
	p *domain.Position,
	price domain.PriceData,
	rates map[domain.CurrencyPair]decimal.Decimal,
) error {
	quantity := p.Quantity.Total()
	trade := tradeCurrency(p)

	for _, f := range domain.Frames {
		ccy := positions.Portfolio.FrameCurrency(f, trade)
		rate, ok := rateFor(rates, trade, ccy)
		if !ok {
			return domain.NewBusinessError("missing fx rate %s:%s on %s", trade, ccy, positions.AsAt)
		}
		mv, err := p.Frame(f, ccy)
		if err != nil {
			return err
		}

		mv.MarketValue = price.Close.Mul(quantity).Mul(rate)
		mv.PriceData = convertPrice(price, rate)
		mv.GainOnDay = decimal.Zero
		if !price.PreviousClose.IsZero() {
			mv.GainOnDay = price.Close.Sub(price.PreviousClose).Mul(quantity).Mul(rate)
		}
		s.gains.Value(quantity, mv)

		mv.IRR = decimal.Zero
		if !p.Asset.IsCash() {
			mv.IRR = XIRR(p.CashFlows, f, mv.MarketValue, positions.AsAt)
		}
	}
	return nil
}

// applyWeights sets each position's share of its frame total as a percentage
func (s *PositionValuationService) applyWeights(positions *domain.Positions) {
	for _, f := range domain.Frames {
		total := positions.MarketValue(f)
		for _, p := range positions.List() {
			mv := p.Values(f)
			if mv == nil {
				continue
			}
			if total.IsZero() {
				mv.Weight = decimal.Zero
				continue
			}
			mv.Weight = mv.MarketValue.Mul(domain.Hundred).DivRound(total, weightPlaces)
		}
	}
}

// applyTotalsIRR computes the portfolio level IRR per frame from the combined
// flows of every non-cash position, closed out by their market value
func (s *PositionValuationService) applyTotalsIRR(positions *domain.Positions) {
	for _, f := range domain.Frames {
		var flows []domain.CashFlow
		terminal := decimal.Zero
		for _, p := range positions.List() {
			if p.Asset.IsCash() {
				continue
			}
			mv := p.Values(f)
			if mv == nil {
				continue
			}
			flows = append(flows, p.CashFlows...)
			terminal = terminal.Add(mv.MarketValue)
		}
		positions.Total(f).IRR = XIRR(flows, f, terminal, positions.AsAt)
	}
}

// pricedAssets drops cash and duplicates from assets
func pricedAssets(assets []domain.Asset) []domain.Asset {
	seen := make(map[string]struct{}, len(assets))
	result := make([]domain.Asset, 0, len(assets))
	for _, a := range assets {
		if a.IsCash() {
			continue
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		result = append(result, a)
	}
	return result
}

// priceFor returns the price of asset. Cash is always worth one unit of its
// own currency.
func priceFor(asset domain.Asset, prices map[string]domain.PriceData, date string) (domain.PriceData, bool) {
	if asset.IsCash() {
		return domain.PriceData{
			Date:          date,
			Open:          domain.One,
			High:          domain.One,
			Low:           domain.One,
			Close:         domain.One,
			PreviousClose: domain.One,
		}, true
	}
	price, ok := prices[asset.ID]
	if !ok || price.Close.IsZero() {
		return domain.PriceData{}, false
	}
	return price, true
}
