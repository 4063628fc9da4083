package di

import (
	"fmt"
	"time"

	"github.com/aristath/valuator/internal/clientdata"
	"github.com/aristath/valuator/internal/clients/alphavantage"
	"github.com/aristath/valuator/internal/clients/exchangerate"
	"github.com/aristath/valuator/internal/config"
	"github.com/aristath/valuator/internal/events"
	"github.com/aristath/valuator/internal/metrics"
	"github.com/aristath/valuator/internal/modules/accumulation"
	"github.com/aristath/valuator/internal/modules/corporate"
	corporatehandlers "github.com/aristath/valuator/internal/modules/corporate/handlers"
	"github.com/aristath/valuator/internal/modules/ledger"
	ledgerhandlers "github.com/aristath/valuator/internal/modules/ledger/handlers"
	"github.com/aristath/valuator/internal/modules/marketdata"
	marketdatahandlers "github.com/aristath/valuator/internal/modules/marketdata/handlers"
	"github.com/aristath/valuator/internal/modules/performance"
	performancehandlers "github.com/aristath/valuator/internal/modules/performance/handlers"
	"github.com/aristath/valuator/internal/modules/valuation"
	valuationhandlers "github.com/aristath/valuator/internal/modules/valuation/handlers"
	"github.com/aristath/valuator/internal/services"
	"github.com/rs/zerolog"
)

// InitializeServices creates clients, repositories, services and handlers
// on top of the databases in container
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	taxRates, err := cfg.TaxRates()
	if err != nil {
		return fmt.Errorf("failed to parse dividend tax rates: %w", err)
	}
	now := time.Now

	container.Metrics = metrics.New()
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// Provider clients share the client_data response cache
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())
	container.ExchangeRateClient = exchangerate.NewClient(cfg.ExchangeRateBaseURL, container.ClientDataRepo, log)

	// Left as a nil interface without a key so the services skip the tier
	var provider alphavantage.ClientInterface
	if cfg.AlphaVantageAPIKey != "" {
		avConfig := alphavantage.DefaultConfig()
		avConfig.RequestsPerMinute = cfg.AlphaVantageRatePerMinute
		provider = alphavantage.NewClient(cfg.AlphaVantageAPIKey, avConfig, container.ClientDataRepo, log)
	} else {
		log.Warn().Msg("ALPHAVANTAGE_API_KEY not set, only stored prices and rates will be used")
	}

	// Ledger: transactions and market data overrides
	container.TransactionRepo = ledger.NewTransactionRepository(container.LedgerDB.Conn(), log)
	container.LedgerService = ledger.NewService(container.TransactionRepo, container.EventManager, log)
	container.MarketDataRepo = marketdata.NewRepository(container.LedgerDB.Conn(), log)
	container.MarketDataService = marketdata.NewService(container.MarketDataRepo, container.EventManager, log)

	// Market data sources valuation reads through
	container.PriceService = services.NewPriceService(
		container.MarketDataRepo, provider, container.ClientDataRepo, now, container.Metrics, log)
	container.ExchangeRateService = services.NewExchangeRateService(
		container.MarketDataRepo, container.ExchangeRateClient, provider, now, container.Metrics, log)

	// Valuation
	container.Accumulator = accumulation.NewAccumulator()
	container.PositionValuationService = valuation.NewPositionValuationService(
		container.PriceService,
		container.ExchangeRateService,
		valuation.Config{PriceTimeout: cfg.PriceTimeout, FxTimeout: cfg.FxTimeout},
		container.Metrics,
		log,
	)
	container.ValuationService = valuation.NewValuationService(
		container.TransactionRepo,
		container.ExchangeRateService,
		container.Accumulator,
		container.PositionValuationService,
		now,
		container.Metrics,
		log,
	)

	// Performance snapshots and their invalidation
	switch cfg.PerformanceCache {
	case config.CacheNone:
		container.PerformanceCache = performance.NewNoopCache()
	default:
		container.PerformanceCache = performance.NewSQLiteCache(container.CacheDB.Conn(), container.Metrics, log)
	}
	container.PerformanceService = performance.NewPerformanceService(
		container.ValuationService,
		container.TransactionRepo,
		container.ExchangeRateService,
		container.PerformanceCache,
		cfg.PerformanceMaxDays,
		now,
		container.Metrics,
		log,
	)
	container.InvalidationListener = performance.NewInvalidationListener(
		container.PerformanceCache, container.EventManager, container.Metrics, log)
	container.unsubscribe = container.InvalidationListener.Register(container.EventBus)

	// Corporate events resolve against valued positions and record into the ledger
	container.EventResolver = accumulation.NewEventResolver(taxRates, now)
	container.CorporateService = corporate.NewService(
		container.ValuationService, container.EventResolver, container.LedgerService, log)

	// Handlers
	container.ValuationHandler = valuationhandlers.NewHandler(container.ValuationService, log)
	container.PerformanceHandler = performancehandlers.NewHandler(container.PerformanceService, container.EventManager, log)
	container.LedgerHandler = ledgerhandlers.NewHandler(container.LedgerService, log)
	container.MarketDataHandler = marketdatahandlers.NewHandler(container.MarketDataService, log)
	container.CorporateHandler = corporatehandlers.NewHandler(container.CorporateService, log)

	log.Info().
		Str("performance_cache", cfg.PerformanceCache).
		Bool("alphavantage", provider != nil).
		Msg("Services initialized")
	return nil
}
