package marketdata

import (
	"context"
	"sort"
	"strings"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/events"
	"github.com/rs/zerolog"
)

// Service validates and stores market data overrides, announcing each
// changed date on the event bus
type Service struct {
	repo   *Repository
	events *events.Manager
	log    zerolog.Logger
}

// NewService creates a new market data service
func NewService(repo *Repository, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: eventManager,
		log:    log.With().Str("service", "marketdata").Logger(),
	}
}

// StorePrices saves prices and emits PRICE_CHANGED once per affected date
func (s *Service) StorePrices(ctx context.Context, prices []StoredPrice) error {
	if len(prices) == 0 {
		return domain.InvalidInput("no prices to store")
	}
	byDate := make(map[string][]string)
	for i, p := range prices {
		if strings.TrimSpace(p.AssetID) == "" {
			return domain.InvalidInput("price %d: assetId is required", i)
		}
		if _, err := domain.ParseDate(p.Date); err != nil {
			return domain.InvalidInput("price %d: %s", i, err.Error())
		}
		if !p.Close.IsPositive() {
			return domain.InvalidInput("price %d: close must be positive", i)
		}
		byDate[p.Date] = append(byDate[p.Date], p.AssetID)
	}

	if err := s.repo.SavePrices(ctx, prices); err != nil {
		return err
	}

	for _, date := range sortedKeys(byDate) {
		data := &events.PriceChangedData{FromDate: date}
		if assets := byDate[date]; len(assets) == 1 {
			data.AssetID = assets[0]
		}
		s.events.Emit(events.PriceChanged, "marketdata", data)
	}
	s.log.Info().Int("count", len(prices)).Int("dates", len(byDate)).Msg("Stored prices")
	return nil
}

// StoreRates saves FX rates and emits FX_CHANGED once per affected date
func (s *Service) StoreRates(ctx context.Context, rates []StoredRate) error {
	if len(rates) == 0 {
		return domain.InvalidInput("no fx rates to store")
	}
	byDate := make(map[string][]string)
	for i, rate := range rates {
		if err := domain.ValidateCurrency(rate.From); err != nil {
			return domain.InvalidInput("rate %d: %s", i, err.Error())
		}
		if err := domain.ValidateCurrency(rate.To); err != nil {
			return domain.InvalidInput("rate %d: %s", i, err.Error())
		}
		if rate.From == rate.To {
			return domain.InvalidInput("rate %d: %s converts a currency to itself", i, rate.Pair())
		}
		if _, err := domain.ParseDate(rate.Date); err != nil {
			return domain.InvalidInput("rate %d: %s", i, err.Error())
		}
		if !rate.Rate.IsPositive() {
			return domain.InvalidInput("rate %d: rate must be positive", i)
		}
		byDate[rate.Date] = append(byDate[rate.Date], rate.Pair().String())
	}

	if err := s.repo.SaveRates(ctx, rates); err != nil {
		return err
	}

	for _, date := range sortedKeys(byDate) {
		data := &events.FxChangedData{FromDate: date}
		if pairs := byDate[date]; len(pairs) == 1 {
			data.Pair = pairs[0]
		}
		s.events.Emit(events.FxChanged, "marketdata", data)
	}
	s.log.Info().Int("count", len(rates)).Int("dates", len(byDate)).Msg("Stored fx rates")
	return nil
}

// Prices returns the stored prices of assets on date
func (s *Service) Prices(ctx context.Context, assetIDs []string, date string) (map[string]domain.PriceData, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	assets := make([]domain.Asset, 0, len(assetIDs))
	for _, id := range assetIDs {
		assets = append(assets, domain.Asset{ID: id})
	}
	return s.repo.GetPrices(ctx, assets, date)
}

// Rate returns the stored rate for one pair on date
func (s *Service) Rate(ctx context.Context, pair domain.CurrencyPair, date string) (*StoredRate, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	rates, err := s.repo.FindRates(ctx, []domain.CurrencyPair{pair}, date)
	if err != nil {
		return nil, err
	}
	rate, ok := rates[pair]
	if !ok {
		return nil, domain.NewNotFoundError("fx rate", pair.String()+"@"+date)
	}
	return &StoredRate{From: pair.From, To: pair.To, Date: date, Rate: rate}, nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
