// Package corporate turns announced dividends and splits into the
// transactions they imply for a portfolio.
package corporate

import (
	"context"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/modules/accumulation"
	"github.com/aristath/valuator/internal/modules/valuation"
	"github.com/rs/zerolog"
)

// PositionBuilder folds one asset of a portfolio up to a date
type PositionBuilder interface {
	BuildQuery(ctx context.Context, query valuation.Query) (*domain.Positions, error)
}

// Recorder stores resolved transactions
type Recorder interface {
	Record(ctx context.Context, trns []domain.Transaction) ([]domain.Transaction, error)
}

// Request asks for an event to be resolved against a portfolio
type Request struct {
	Portfolio domain.Portfolio            `json:"portfolio"`
	Event     accumulation.CorporateEvent `json:"event"`
	Record    bool                        `json:"record"`
}

// Result is the resolved transaction and whether it was written to the ledger
type Result struct {
	Transaction domain.Transaction `json:"transaction"`
	Recorded    bool               `json:"recorded"`
}

// Service resolves corporate events
type Service struct {
	builder  PositionBuilder
	resolver *accumulation.EventResolver
	recorder Recorder
	log      zerolog.Logger
}

// NewService creates a new corporate event service. recorder may be nil, in
// which case events are only resolved.
func NewService(builder PositionBuilder, resolver *accumulation.EventResolver, recorder Recorder, log zerolog.Logger) *Service {
	return &Service{
		builder:  builder,
		resolver: resolver,
		recorder: recorder,
		log:      log.With().Str("service", "corporate").Logger(),
	}
}

// Resolve computes the transaction req.Event implies for the holding on its
// record date. IGNORE results are never recorded.
func (s *Service) Resolve(ctx context.Context, req Request) (*Result, error) {
	if err := req.Portfolio.Validate(); err != nil {
		return nil, err
	}
	if err := req.Event.Validate(); err != nil {
		return nil, err
	}

	positions, err := s.builder.BuildQuery(ctx, valuation.Query{
		Portfolio: req.Portfolio,
		AssetID:   req.Event.Asset.ID,
		TradeDate: req.Event.RecordDate,
	})
	if err != nil {
		return nil, err
	}
	position, _ := positions.Find(req.Event.Asset.ID)

	trn, err := s.resolver.Resolve(req.Event, req.Portfolio, position)
	if err != nil {
		return nil, err
	}
	result := &Result{Transaction: trn}

	if req.Record && trn.Type != domain.TrnIgnore {
		if s.recorder == nil {
			return nil, domain.NewBusinessError("recording corporate events is not enabled")
		}
		saved, err := s.recorder.Record(ctx, []domain.Transaction{trn})
		if err != nil {
			return nil, err
		}
		result.Transaction = saved[0]
		result.Recorded = true
	}

	s.log.Debug().
		Str("portfolio", req.Portfolio.ID).
		Str("event", req.Event.ID).
		Str("resolved", string(result.Transaction.Type)).
		Bool("recorded", result.Recorded).
		Msg("Resolved corporate event")
	return result, nil
}
