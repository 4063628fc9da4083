// Package di wires databases, clients, services and handlers into a
// Container.
package di

import (
	"github.com/aristath/valuator/internal/clientdata"
	"github.com/aristath/valuator/internal/clients/exchangerate"
	"github.com/aristath/valuator/internal/database"
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
	"github.com/aristath/valuator/internal/scheduler"
	"github.com/aristath/valuator/internal/server"
	"github.com/aristath/valuator/internal/services"
)

// Container holds every long-lived dependency of the application
type Container struct {
	// Databases
	LedgerDB     *database.DB // Transactions plus stored prices and FX rates
	CacheDB      *database.DB // Performance snapshots, recomputable
	ClientDataDB *database.DB // Provider response cache

	EventBus     *events.Bus
	EventManager *events.Manager
	Metrics      *metrics.Registry

	// Clients
	ClientDataRepo     *clientdata.Repository
	ExchangeRateClient *exchangerate.Client

	// Repositories
	TransactionRepo *ledger.TransactionRepository
	MarketDataRepo  *marketdata.Repository

	// Services
	LedgerService            *ledger.Service
	MarketDataService        *marketdata.Service
	PriceService             *services.PriceService
	ExchangeRateService      *services.ExchangeRateService
	Accumulator              *accumulation.Accumulator
	PositionValuationService *valuation.PositionValuationService
	ValuationService         *valuation.ValuationService
	PerformanceCache         performance.Cache
	PerformanceService       *performance.PerformanceService
	InvalidationListener     *performance.InvalidationListener
	EventResolver            *accumulation.EventResolver
	CorporateService         *corporate.Service

	// Handlers
	ValuationHandler   *valuationhandlers.Handler
	PerformanceHandler *performancehandlers.Handler
	LedgerHandler      *ledgerhandlers.Handler
	MarketDataHandler  *marketdatahandlers.Handler
	CorporateHandler   *corporatehandlers.Handler

	Scheduler *scheduler.Scheduler

	unsubscribe func()
}

// Databases returns every open database, for health and status reporting
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.LedgerDB, c.CacheDB, c.ClientDataDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Routes returns the handlers mounted by the HTTP server
func (c *Container) Routes() []server.RouteRegistrar {
	return []server.RouteRegistrar{
		c.ValuationHandler,
		c.PerformanceHandler,
		c.LedgerHandler,
		c.MarketDataHandler,
		c.CorporateHandler,
	}
}

// Close stops background work and closes the databases. It is safe to call
// on a partially wired container.
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.EventBus != nil {
		c.EventBus.Wait()
		c.EventBus.Close()
	}
	for _, db := range c.Databases() {
		db.Close()
	}
}
