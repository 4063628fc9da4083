package accumulation

import (
	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
)

// splitBehaviour rescales the held quantity by the ratio carried in the
// trn's quantity (10 for a 10:1 split). Cost basis is unchanged, so average
// cost and any cached price fall by the same ratio.
type splitBehaviour struct{}

func (splitBehaviour) Apply(trn domain.Transaction, _ domain.Portfolio, position *domain.Position) error {
	ratio := trn.Quantity
	if !ratio.IsPositive() {
		return domain.InvalidInput("split ratio must be positive, got %s", ratio)
	}

	total := position.Quantity.Total()
	split := total.Mul(ratio)
	position.Quantity.Adjustment = position.Quantity.Adjustment.Add(split.Sub(total))

	for _, f := range domain.Frames {
		mv := position.Values(f)
		if mv == nil {
			continue
		}
		if !split.IsZero() {
			mv.AverageCost = mv.CostBasis.Div(split)
		}
		if mv.PriceData != nil {
			rebased := *mv.PriceData
			rebased.Open = rebase(rebased.Open, ratio)
			rebased.High = rebase(rebased.High, ratio)
			rebased.Low = rebase(rebased.Low, ratio)
			rebased.Close = rebase(rebased.Close, ratio)
			rebased.PreviousClose = rebase(rebased.PreviousClose, ratio)
			mv.PriceData = &rebased
		}
	}
	return nil
}

func rebase(price, ratio decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return price
	}
	return price.Div(ratio)
}
