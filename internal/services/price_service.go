package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/valuator/internal/clientdata"
	"github.com/aristath/valuator/internal/clients/alphavantage"
	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxPriceStaleness bounds how far back a provider bar may sit behind the
// requested date and still count as that date's price
const maxPriceStaleness = 7 * 24 * time.Hour

// providerConcurrency caps simultaneous provider lookups per request
const providerConcurrency = 4

// marketSuffixes maps exchange codes to Alpha Vantage symbol suffixes.
// Markets absent here use the bare code.
var marketSuffixes = map[string]string{
	"LSE":   ".LON",
	"TSX":   ".TRT",
	"TSXV":  ".TRV",
	"XETRA": ".DEX",
	"BSE":   ".BSE",
	"SSE":   ".SHH",
	"SZSE":  ".SHZ",
}

// PriceService resolves prices from stored closes first, then from the
// Alpha Vantage daily series. Resolved provider prices are cached in
// client_data and served stale when the provider fails.
type PriceService struct {
	stored   domain.PriceSource
	provider alphavantage.ClientInterface
	cache    *clientdata.Repository
	now      func() time.Time
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// NewPriceService creates a new price service. provider and cache may be nil.
func NewPriceService(
	stored domain.PriceSource,
	provider alphavantage.ClientInterface,
	cache *clientdata.Repository,
	now func() time.Time,
	m *metrics.Registry,
	log zerolog.Logger,
) *PriceService {
	if now == nil {
		now = time.Now
	}
	return &PriceService{
		stored:   stored,
		provider: provider,
		cache:    cache,
		now:      now,
		metrics:  m,
		log:      log.With().Str("service", "price").Logger(),
	}
}

// GetPrices implements domain.PriceSource. Assets nobody has a price for are
// absent from the result. An error is returned when a provider lookup failed
// with nothing cached to fall back on; the prices found so far are returned
// alongside it.
func (s *PriceService) GetPrices(ctx context.Context, assets []domain.Asset, date string) (map[string]domain.PriceData, error) {
	wanted := make([]domain.Asset, 0, len(assets))
	for _, a := range assets {
		if !a.IsCash() {
			wanted = append(wanted, a)
		}
	}
	result := make(map[string]domain.PriceData, len(wanted))
	if len(wanted) == 0 {
		return result, nil
	}

	stored, err := s.stored.GetPrices(ctx, wanted, date)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored prices: %w", err)
	}
	for id, p := range stored {
		result[id] = p
	}

	var missing []domain.Asset
	for _, a := range wanted {
		if _, ok := result[a.ID]; ok {
			continue
		}
		if p, ok := s.cached(a.ID, date, false); ok {
			result[a.ID] = p
			continue
		}
		missing = append(missing, a)
	}
	if len(missing) == 0 || s.provider == nil {
		return result, nil
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(providerConcurrency)
	for _, a := range missing {
		a := a
		g.Go(func() error {
			p, found, err := s.fromProvider(gctx, a, date)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if stale, ok := s.cached(a.ID, date, true); ok {
					s.log.Warn().Err(err).Str("asset", a.ID).Msg("Provider failed, serving stale price")
					result[a.ID] = stale
					return nil
				}
				failures = append(failures, fmt.Errorf("%s: %w", a.ID, err))
			case found:
				result[a.ID] = p
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		return result, &domain.TransientError{Op: "price lookup", Err: errors.Join(failures...)}
	}
	return result, nil
}

// fromProvider picks the last bar on or before date from the asset's daily
// series. found is false when the provider has no usable bar.
func (s *PriceService) fromProvider(ctx context.Context, asset domain.Asset, date string) (domain.PriceData, bool, error) {
	bars, err := s.provider.DailySeries(ctx, ProviderSymbol(asset))
	var notFound alphavantage.ErrSymbolNotFound
	if errors.As(err, &notFound) {
		s.metrics.ProviderRequest("alphavantage", nil)
		s.log.Debug().Str("asset", asset.ID).Msg("Provider has no series for asset")
		return domain.PriceData{}, false, nil
	}
	s.metrics.ProviderRequest("alphavantage", err)
	if err != nil {
		return domain.PriceData{}, false, err
	}

	p, ok := priceFromBars(bars, date)
	if !ok {
		return domain.PriceData{}, false, nil
	}
	s.store(asset.ID, date, p)
	return p, true, nil
}

// priceFromBars expects bars oldest first
func priceFromBars(bars []alphavantage.DailyBar, date string) (domain.PriceData, bool) {
	target, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return domain.PriceData{}, false
	}
	idx := -1
	for i := range bars {
		if bars[i].Date > date {
			break
		}
		idx = i
	}
	if idx < 0 {
		return domain.PriceData{}, false
	}
	bar := bars[idx]
	barDate, err := time.Parse(domain.DateLayout, bar.Date)
	if err != nil || target.Sub(barDate) > maxPriceStaleness {
		return domain.PriceData{}, false
	}

	p := domain.PriceData{
		Date:  bar.Date,
		Open:  bar.Open,
		High:  bar.High,
		Low:   bar.Low,
		Close: bar.Close,
	}
	if idx > 0 {
		p.PreviousClose = bars[idx-1].Close
	}
	// Corporate actions only belong to the day they happened on
	if bar.Date == date {
		p.Dividend = bar.Dividend
		if !bar.SplitCoefficient.IsZero() && !bar.SplitCoefficient.Equal(domain.One) {
			p.Split = bar.SplitCoefficient
		}
	}
	return p, true
}

func (s *PriceService) cached(assetID, date string, allowStale bool) (domain.PriceData, bool) {
	if s.cache == nil {
		return domain.PriceData{}, false
	}
	var p domain.PriceData
	ok, err := s.cache.Load(clientdata.TablePrices, priceKey(assetID, date), &p, allowStale)
	if err != nil {
		s.log.Warn().Err(err).Str("asset", assetID).Msg("Failed to read cached price")
		return domain.PriceData{}, false
	}
	return p, ok
}

func (s *PriceService) store(assetID, date string, p domain.PriceData) {
	if s.cache == nil {
		return
	}
	ttl := clientdata.TTLHistoricalPrice
	if date >= s.now().Format(domain.DateLayout) {
		ttl = clientdata.TTLCurrentPrice
	}
	if err := s.cache.Store(clientdata.TablePrices, priceKey(assetID, date), p, ttl); err != nil {
		s.log.Warn().Err(err).Str("asset", assetID).Msg("Failed to cache price")
	}
}

func priceKey(assetID, date string) string {
	return assetID + "@" + date
}

// ProviderSymbol returns the Alpha Vantage symbol for an asset
func ProviderSymbol(asset domain.Asset) string {
	return asset.Code + marketSuffixes[asset.Market]
}
