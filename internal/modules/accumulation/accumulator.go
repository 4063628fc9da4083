// Package accumulation folds transactions into positions.
package accumulation

import (
	"fmt"
	"sort"

	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
)

// TrnBehaviour applies one transaction type's effect to a position
type TrnBehaviour interface {
	Apply(trn domain.Transaction, portfolio domain.Portfolio, position *domain.Position) error
}

// Accumulator folds transactions into positions. It holds no state beyond
// its behaviour table and is safe for concurrent use.
type Accumulator struct {
	behaviours map[domain.TrnType]TrnBehaviour
}

// NewAccumulator creates an accumulator with a behaviour for every
// transaction type
func NewAccumulator() *Accumulator {
	a := &Accumulator{behaviours: make(map[domain.TrnType]TrnBehaviour, len(domain.TrnTypes))}
	for _, t := range domain.TrnTypes {
		a.behaviours[t] = behaviourFor(t)
	}
	return a
}

// behaviourFor must have a case for every domain.TrnTypes entry.
// NewAccumulator panics at startup if one is missing.
func behaviourFor(t domain.TrnType) TrnBehaviour {
	switch t {
	case domain.TrnBuy:
		return buyBehaviour{}
	case domain.TrnSell:
		return sellBehaviour{}
	case domain.TrnDividend:
		return dividendBehaviour{}
	case domain.TrnSplit:
		return splitBehaviour{}
	case domain.TrnDeposit, domain.TrnFxBuy:
		return depositBehaviour{}
	case domain.TrnWithdrawal:
		return withdrawalBehaviour{}
	case domain.TrnIgnore:
		return ignoreBehaviour{}
	}
	panic(fmt.Sprintf("accumulation: no behaviour for transaction type %q", t))
}

// Accumulate applies trn to position and returns it. A nil position is
// replaced by a zero-based one for the transaction's asset.
func (a *Accumulator) Accumulate(trn domain.Transaction, portfolio domain.Portfolio, position *domain.Position) (*domain.Position, error) {
	if position == nil {
		position = domain.NewPosition(trn.Asset)
	}
	behaviour, ok := a.behaviours[trn.Type]
	if !ok {
		return nil, domain.InvalidInput("unknown transaction type %q", trn.Type)
	}
	if err := behaviour.Apply(trn, portfolio, position); err != nil {
		return nil, err
	}
	if trn.Type != domain.TrnIgnore {
		position.Touch(trn.TradeDate)
	}
	return position, nil
}

// Fold applies trns to positions in trade date order. Transactions that are
// not confirmed, are IGNORE, or are dated after positions.AsAt are skipped.
// Cash legs are settled against the cash asset's position. Totals are
// recomputed once everything is applied.
func (a *Accumulator) Fold(positions *domain.Positions, trns []domain.Transaction) error {
	for _, trn := range SortTransactions(trns) {
		if !trn.IsConfirmed() || trn.Type == domain.TrnIgnore {
			continue
		}
		if positions.AsAt != "" && trn.TradeDate > positions.AsAt {
			continue
		}

		position := positions.Get(trn.Asset)
		if _, err := a.Accumulate(trn, positions.Portfolio, position); err != nil {
			return fmt.Errorf("failed to accumulate %s %s on %s: %w", trn.Type, trn.Asset.ID, trn.TradeDate, err)
		}

		cashTrn, ok, err := cashLeg(trn, positions.Portfolio)
		if err != nil {
			return fmt.Errorf("failed to settle cash for %s %s on %s: %w", trn.Type, trn.Asset.ID, trn.TradeDate, err)
		}
		if !ok {
			continue
		}
		cash := positions.Get(cashTrn.Asset)
		if _, err := a.Accumulate(cashTrn, positions.Portfolio, cash); err != nil {
			return fmt.Errorf("failed to settle cash for %s %s on %s: %w", trn.Type, trn.Asset.ID, trn.TradeDate, err)
		}
	}

	positions.ResetTotals()
	return nil
}

// SortTransactions returns a copy of trns ordered by trade date, then
// ingestion sequence, then id
func SortTransactions(trns []domain.Transaction) []domain.Transaction {
	sorted := make([]domain.Transaction, len(trns))
	copy(sorted, trns)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TradeDate != sorted[j].TradeDate {
			return sorted[i].TradeDate < sorted[j].TradeDate
		}
		if sorted[i].Sequence != sorted[j].Sequence {
			return sorted[i].Sequence < sorted[j].Sequence
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// cashLeg derives the cash movement settling trn, if it has one
func cashLeg(trn domain.Transaction, portfolio domain.Portfolio) (domain.Transaction, bool, error) {
	if trn.CashAsset == nil || trn.CashAmount.IsZero() {
		return domain.Transaction{}, false, nil
	}
	if trn.Type == domain.TrnSplit {
		return domain.Transaction{}, false, nil
	}

	cashCcy := trn.CashCurrency
	if cashCcy == "" {
		cashCcy = trn.CashAsset.Currency
	}

	// Rates on trn convert from the trade currency; the cash leg needs them
	// from the cash currency.
	tradeToCash, err := legRate(trn.TradeCurrency, cashCcy, trn.TradeCashRate)
	if err != nil {
		return domain.Transaction{}, false, err
	}
	cashToTrade := domain.One.Div(tradeToCash)

	leg := domain.Transaction{
		ID:            trn.ID + ":cash",
		PortfolioID:   trn.PortfolioID,
		Type:          domain.TrnDeposit,
		Status:        domain.TrnConfirmed,
		Asset:         *trn.CashAsset,
		TradeDate:     trn.TradeDate,
		Sequence:      trn.Sequence,
		TradeAmount:   trn.CashAmount.Abs(),
		Quantity:      trn.CashAmount.Abs(),
		Price:         domain.One,
		TradeCurrency: cashCcy,
	}
	if trn.CashAmount.IsNegative() {
		leg.Type = domain.TrnWithdrawal
	}
	tradeToPortfolio, err := legRate(trn.TradeCurrency, portfolio.Currency, trn.TradePortfolioRate)
	if err != nil {
		return domain.Transaction{}, false, err
	}
	tradeToBase, err := legRate(trn.TradeCurrency, portfolio.Base, trn.TradeBaseRate)
	if err != nil {
		return domain.Transaction{}, false, err
	}
	leg.TradePortfolioRate = cashToTrade.Mul(tradeToPortfolio)
	leg.TradeBaseRate = cashToTrade.Mul(tradeToBase)
	return leg, true, nil
}

// legRate returns the multiplier converting from into to. A zero given rate
// is only acceptable when no conversion is needed.
func legRate(from, to domain.Currency, given decimal.Decimal) (decimal.Decimal, error) {
	if !given.IsZero() {
		return given, nil
	}
	if from == to || from == "" || to == "" {
		return domain.One, nil
	}
	return decimal.Zero, domain.NewBusinessError("missing fx rate %s:%s", from, to)
}
