package performance

import (
	"context"
	"time"

	"github.com/aristath/valuator/internal/events"
	"github.com/aristath/valuator/internal/metrics"
	"github.com/rs/zerolog"
)

// invalidationTimeout bounds one cache invalidation triggered by an event
const invalidationTimeout = 30 * time.Second

// InvalidationListener drops cached snapshots when the data they were
// computed from changes. Handlers are idempotent; redelivery is harmless.
type InvalidationListener struct {
	cache   Cache
	events  *events.Manager
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewInvalidationListener creates a new invalidation listener. eventManager
// may be nil, in which case no SNAPSHOTS_INVALIDATED events are emitted.
func NewInvalidationListener(cache Cache, eventManager *events.Manager, m *metrics.Registry, log zerolog.Logger) *InvalidationListener {
	return &InvalidationListener{
		cache:   cache,
		events:  eventManager,
		metrics: m,
		log:     log.With().Str("service", "performance_invalidation").Logger(),
	}
}

// Register subscribes the listener to bus and returns a function removing
// every subscription
func (l *InvalidationListener) Register(bus *events.Bus) func() {
	unsubscribe := []func(){
		bus.Subscribe(events.TransactionChanged, l.onTransactionChanged),
		bus.Subscribe(events.PriceChanged, l.onMarketDataChanged),
		bus.Subscribe(events.FxChanged, l.onMarketDataChanged),
	}
	return func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}
}

func (l *InvalidationListener) onTransactionChanged(event *events.Event) {
	data, ok := event.Data.(*events.TransactionChangedData)
	if !ok || data.PortfolioID == "" || data.FromDate == "" {
		l.log.Warn().Str("event_id", event.ID).Msg("Ignoring malformed transaction change")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), invalidationTimeout)
	defer cancel()

	if err := l.cache.InvalidateFrom(ctx, data.PortfolioID, data.FromDate); err != nil {
		l.log.Error().
			Err(err).
			Str("portfolio", data.PortfolioID).
			Str("from_date", data.FromDate).
			Msg("Failed to invalidate snapshots")
		return
	}

	l.metrics.Invalidation(string(events.ChangeTransaction))
	l.events.Emit(events.SnapshotsInvalidated, "performance", &events.SnapshotsInvalidatedData{
		PortfolioID: data.PortfolioID,
		FromDate:    data.FromDate,
	})
}

// onMarketDataChanged handles both price and FX changes. Only the snapshots
// on the changed date are dropped: later snapshots were valued with later
// market data.
func (l *InvalidationListener) onMarketDataChanged(event *events.Event) {
	var date string
	var change events.ChangeType
	switch data := event.Data.(type) {
	case *events.PriceChangedData:
		date, change = data.FromDate, events.ChangePrice
	case *events.FxChangedData:
		date, change = data.FromDate, events.ChangeFx
	}
	if date == "" {
		l.log.Warn().Str("event_id", event.ID).Msg("Ignoring malformed market data change")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), invalidationTimeout)
	defer cancel()

	if err := l.cache.InvalidateOnDate(ctx, date); err != nil {
		l.log.Error().
			Err(err).
			Str("change_type", string(change)).
			Str("date", date).
			Msg("Failed to invalidate snapshots")
		return
	}

	l.metrics.Invalidation(string(change))
	l.events.Emit(events.SnapshotsInvalidated, "performance", &events.SnapshotsInvalidatedData{
		OnDate: date,
	})
}
