package ledger

import (
	"context"
	"sort"
	"strings"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository is the storage the ledger service writes through
type Repository interface {
	domain.TransactionSource
	Get(ctx context.Context, portfolioID, id string) (*domain.Transaction, error)
	Save(ctx context.Context, trns []domain.Transaction) (map[string]Replaced, error)
	Delete(ctx context.Context, portfolioID, id string) (*domain.Transaction, error)
}

// Service records and removes transactions. Every change is announced with
// a TRANSACTION_CHANGED event carrying the earliest affected trade date.
type Service struct {
	repo   Repository
	events *events.Manager
	log    zerolog.Logger
}

// NewService creates a new ledger service
func NewService(repo Repository, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: eventManager,
		log:    log.With().Str("service", "ledger").Logger(),
	}
}

// Record validates and stores trns. Transactions without an id get a new
// one. The stored transactions are returned.
func (s *Service) Record(ctx context.Context, trns []domain.Transaction) ([]domain.Transaction, error) {
	if len(trns) == 0 {
		return nil, domain.InvalidInput("no transactions to record")
	}

	prepared := make([]domain.Transaction, len(trns))
	for i, trn := range trns {
		if strings.TrimSpace(trn.PortfolioID) == "" {
			return nil, domain.InvalidInput("transaction %d: portfolioId is required", i)
		}
		if trn.ID == "" {
			trn.ID = uuid.NewString()
		}
		if trn.Status == "" {
			trn.Status = domain.TrnConfirmed
		}
		if err := trn.Validate(); err != nil {
			return nil, err
		}
		trn.Type, _ = domain.ParseTrnType(string(trn.Type))
		prepared[i] = trn
	}

	previous, err := s.repo.Save(ctx, prepared)
	if err != nil {
		return nil, err
	}

	// Earliest affected date per portfolio. A replaced row also invalidates
	// its old portfolio from its old date, which covers moves between
	// portfolios.
	from := make(map[string]string)
	touch := func(portfolioID, date string) {
		if current, ok := from[portfolioID]; !ok || date < current {
			from[portfolioID] = date
		}
	}
	for _, trn := range prepared {
		touch(trn.PortfolioID, trn.TradeDate)
		if old, ok := previous[trn.ID]; ok {
			touch(old.PortfolioID, old.TradeDate)
		}
	}
	portfolios := make([]string, 0, len(from))
	for p := range from {
		portfolios = append(portfolios, p)
	}
	sort.Strings(portfolios)
	for _, p := range portfolios {
		s.events.Emit(events.TransactionChanged, "ledger", &events.TransactionChangedData{
			PortfolioID: p,
			FromDate:    from[p],
		})
	}

	s.log.Info().
		Int("count", len(prepared)).
		Strs("portfolios", portfolios).
		Msg("Recorded transactions")
	return prepared, nil
}

// List returns a portfolio's transactions up to toDate, or all of them when
// toDate is empty
func (s *Service) List(ctx context.Context, portfolioID, assetID, toDate string) ([]domain.Transaction, error) {
	if strings.TrimSpace(portfolioID) == "" {
		return nil, domain.InvalidInput("portfolio id is required")
	}
	if toDate != "" {
		if _, err := domain.ParseDate(toDate); err != nil {
			return nil, err
		}
	}
	return s.repo.Transactions(ctx, domain.TrnQuery{PortfolioID: portfolioID, AssetID: assetID, ToDate: toDate})
}

// Get returns one transaction
func (s *Service) Get(ctx context.Context, portfolioID, id string) (*domain.Transaction, error) {
	return s.repo.Get(ctx, portfolioID, id)
}

// Delete removes one transaction
func (s *Service) Delete(ctx context.Context, portfolioID, id string) error {
	trn, err := s.repo.Delete(ctx, portfolioID, id)
	if err != nil {
		return err
	}

	s.events.Emit(events.TransactionChanged, "ledger", &events.TransactionChangedData{
		PortfolioID:   portfolioID,
		FromDate:      trn.TradeDate,
		TransactionID: id,
	})
	s.log.Info().Str("portfolio", portfolioID).Str("id", id).Msg("Deleted transaction")
	return nil
}
