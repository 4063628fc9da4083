package performance

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxDays is the longest series computed in one request
	DefaultMaxDays = 366
	// twrPlaces is the rounding applied to the time-weighted return
	twrPlaces = 8
	// valuationWorkers caps concurrent valuations of missing dates
	valuationWorkers = 4
)

// Valuer values a portfolio as at a date
type Valuer interface {
	Positions(ctx context.Context, portfolio domain.Portfolio, date string) (*domain.Positions, error)
}

// Series is a portfolio's daily performance over a date range
type Series struct {
	Portfolio domain.Portfolio        `json:"portfolio"`
	From      string                  `json:"from"`
	To        string                  `json:"to"`
	Snapshots []domain.CachedSnapshot `json:"snapshots"`
	TWR       decimal.Decimal         `json:"twr"`
	Cached    int                     `json:"cached"`
	Computed  int                     `json:"computed"`
	Partial   bool                    `json:"partial"`
}

// PerformanceService builds daily snapshot series, reading through the cache
type PerformanceService struct {
	valuer  Valuer
	trns    domain.TransactionSource
	fx      domain.FxSource
	cache   Cache
	maxDays int
	now     func() time.Time
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewPerformanceService creates a new performance service. A nil cache
// behaves as NoopCache; maxDays <= 0 means DefaultMaxDays.
func NewPerformanceService(
	valuer Valuer,
	trns domain.TransactionSource,
	fx domain.FxSource,
	cache Cache,
	maxDays int,
	now func() time.Time,
	m *metrics.Registry,
	log zerolog.Logger,
) *PerformanceService {
	if cache == nil {
		cache = NewNoopCache()
	}
	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}
	if now == nil {
		now = time.Now
	}
	return &PerformanceService{
		valuer:  valuer,
		trns:    trns,
		fx:      fx,
		cache:   cache,
		maxDays: maxDays,
		now:     now,
		metrics: m,
		log:     log.With().Str("service", "performance").Logger(),
	}
}

// Series returns one snapshot per day in [from, to] and the time-weighted
// return chained over them. Cached days are reused; the rest are valued and
// stored once every day has been computed.
func (s *PerformanceService) Series(ctx context.Context, portfolio domain.Portfolio, from, to string) (*Series, error) {
	if err := portfolio.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	to, err := domain.ResolveDate(to, now)
	if err != nil {
		return nil, err
	}
	if from == "" {
		return nil, domain.InvalidInput("from date is required")
	}
	from, err = domain.ResolveDate(from, now)
	if err != nil {
		return nil, err
	}
	dates, err := domain.DateRange(from, to)
	if err != nil {
		return nil, err
	}
	if len(dates) > s.maxDays {
		return nil, domain.NewBusinessError("date range of %d days exceeds the maximum of %d", len(dates), s.maxDays)
	}

	started := time.Now()
	// Read before any data so a change landing mid-computation is detected
	generation := s.cache.Generation(portfolio.ID)
	cached := s.findCached(ctx, portfolio.ID, dates)

	var missing []string
	for _, d := range dates {
		if _, ok := cached[d]; !ok {
			missing = append(missing, d)
		}
	}

	computed, partial, err := s.compute(ctx, portfolio, missing)
	s.metrics.ObserveValuation("performance", started, err)
	if err != nil {
		return nil, err
	}

	series := &Series{
		Portfolio: portfolio,
		From:      from,
		To:        to,
		Snapshots: make([]domain.CachedSnapshot, 0, len(dates)),
		Cached:    len(cached),
		Computed:  len(computed),
		Partial:   partial,
	}
	for _, d := range dates {
		if snap, ok := cached[d]; ok {
			series.Snapshots = append(series.Snapshots, snap)
			continue
		}
		series.Snapshots = append(series.Snapshots, computed[d])
	}
	series.TWR = TimeWeightedReturn(series.Snapshots)

	// Partial valuations and cancelled requests never reach the cache
	if len(computed) > 0 && !partial && ctx.Err() == nil {
		stored := make([]domain.CachedSnapshot, 0, len(computed))
		for _, d := range missing {
			stored = append(stored, computed[d])
		}
		written, err := s.cache.StoreSnapshotsIfCurrent(ctx, portfolio.ID, generation, stored)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("portfolio", portfolio.ID).Msg("Failed to store performance snapshots")
		case !written:
			s.log.Debug().Str("portfolio", portfolio.ID).Msg("Portfolio changed while computing, snapshots not cached")
		}
	}

	s.log.Debug().
		Str("portfolio", portfolio.ID).
		Str("from", from).
		Str("to", to).
		Int("cached", series.Cached).
		Int("computed", series.Computed).
		Dur("elapsed", time.Since(started)).
		Msg("Built performance series")

	return series, nil
}

// Snapshot returns the cached snapshot for one date
func (s *PerformanceService) Snapshot(ctx context.Context, portfolioID, date string) (*domain.CachedSnapshot, error) {
	if portfolioID == "" {
		return nil, domain.InvalidInput("portfolio id is required")
	}
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	found, err := s.cache.FindSnapshots(ctx, portfolioID, []string{date})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, domain.NewNotFoundError("snapshot", portfolioID+"@"+date)
	}
	return &found[0], nil
}

// Invalidate drops every cached snapshot of a portfolio
func (s *PerformanceService) Invalidate(ctx context.Context, portfolioID string) error {
	if portfolioID == "" {
		return domain.InvalidInput("portfolio id is required")
	}
	return s.cache.InvalidatePortfolio(ctx, portfolioID)
}

// findCached reads through the cache. A failing cache counts as empty.
func (s *PerformanceService) findCached(ctx context.Context, portfolioID string, dates []string) map[string]domain.CachedSnapshot {
	found, err := s.cache.FindSnapshots(ctx, portfolioID, dates)
	if err != nil {
		s.log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Performance cache lookup failed, recomputing")
		return map[string]domain.CachedSnapshot{}
	}
	byDate := make(map[string]domain.CachedSnapshot, len(found))
	for _, snap := range found {
		byDate[snap.ValuationDate] = snap
	}
	return byDate
}

// compute values each missing date. Any failure fails the whole series.
func (s *PerformanceService) compute(ctx context.Context, portfolio domain.Portfolio, dates []string) (map[string]domain.CachedSnapshot, bool, error) {
	result := make(map[string]domain.CachedSnapshot, len(dates))
	if len(dates) == 0 {
		return result, false, nil
	}

	flows, err := s.externalFlows(ctx, portfolio, dates[len(dates)-1])
	if err != nil {
		return nil, false, err
	}

	snapshots := make([]domain.CachedSnapshot, len(dates))
	partial := make([]bool, len(dates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(valuationWorkers)
	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			positions, err := s.valuer.Positions(gctx, portfolio, date)
			if err != nil {
				return fmt.Errorf("failed to value %s on %s: %w", portfolio.ID, date, err)
			}
			partial[i] = positions.Partial
			snapshots[i] = domain.CachedSnapshot{
				PortfolioID:         portfolio.ID,
				ValuationDate:       date,
				MarketValue:         positions.MarketValue(domain.FramePortfolio),
				ExternalCashFlow:    flows.on(date),
				NetContributions:    flows.upTo(date),
				CumulativeDividends: positions.Total(domain.FramePortfolio).Income,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	anyPartial := false
	for i, date := range dates {
		result[date] = snapshots[i]
		anyPartial = anyPartial || partial[i]
	}
	return result, anyPartial, nil
}
