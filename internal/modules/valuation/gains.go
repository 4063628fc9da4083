// Package valuation applies market prices and FX rates to positions.
package valuation

import (
	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
)

// Gains derives unrealised and total gain for one frame
type Gains struct{}

// Value sets unrealised gain (market value less cost basis) and total gain
// (realised + unrealised + dividends) on mv and returns it. A position with
// no quantity has no unrealised gain.
func (Gains) Value(quantity decimal.Decimal, mv *domain.MoneyValues) *domain.MoneyValues {
	if mv == nil {
		return nil
	}
	if quantity.IsZero() {
		mv.UnrealisedGain = decimal.Zero
		mv.AverageCost = decimal.Zero
	} else {
		mv.UnrealisedGain = mv.MarketValue.Sub(mv.CostBasis)
	}
	mv.TotalGain = mv.RealisedGain.Add(mv.UnrealisedGain).Add(mv.Dividends)
	return mv
}
