package accumulation

import (
	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
)

// frameRates converts trade currency amounts into each frame
type frameRates struct {
	portfolio decimal.Decimal
	base      decimal.Decimal
}

func ratesFor(trn domain.Transaction, portfolio domain.Portfolio) (frameRates, error) {
	p, err := legRate(trn.TradeCurrency, portfolio.Currency, trn.TradePortfolioRate)
	if err != nil {
		return frameRates{}, err
	}
	b, err := legRate(trn.TradeCurrency, portfolio.Base, trn.TradeBaseRate)
	if err != nil {
		return frameRates{}, err
	}
	return frameRates{portfolio: p, base: b}, nil
}

func (r frameRates) in(f domain.Frame) decimal.Decimal {
	switch f {
	case domain.FramePortfolio:
		return r.portfolio
	case domain.FrameBase:
		return r.base
	default:
		return domain.One
	}
}

// eachFrame calls fn with every frame's money values and the rate taking the
// trade currency into that frame
func eachFrame(trn domain.Transaction, portfolio domain.Portfolio, position *domain.Position,
	fn func(mv *domain.MoneyValues, rate decimal.Decimal)) (frameRates, error) {
	rates, err := ratesFor(trn, portfolio)
	if err != nil {
		return frameRates{}, err
	}
	for _, f := range domain.Frames {
		mv, err := position.Frame(f, portfolio.FrameCurrency(f, trn.TradeCurrency))
		if err != nil {
			return frameRates{}, err
		}
		fn(mv, rates.in(f))
	}
	return rates, nil
}

// acquire adds qty units costing amount (in trade currency) to position.
// Units bought against a short position close it out first and realise the
// difference against the short's average proceeds.
func acquire(trn domain.Transaction, portfolio domain.Portfolio, position *domain.Position,
	qty, amount decimal.Decimal) (frameRates, error) {
	before := position.Quantity.Total()
	position.Quantity.Purchased = position.Quantity.Purchased.Add(qty)
	after := position.Quantity.Total()

	covered := decimal.Zero
	if before.IsNegative() {
		covered = decimal.Min(qty, before.Neg())
	}

	return eachFrame(trn, portfolio, position, func(mv *domain.MoneyValues, rate decimal.Decimal) {
		value := amount.Mul(rate)
		mv.Purchases = mv.Purchases.Add(value)
		mv.Fees = mv.Fees.Add(trn.Fees.Mul(rate))
		if covered.IsPositive() {
			coverCost := portion(value, covered, qty)
			shortProceeds := mv.AverageCost.Mul(covered)
			if covered.Equal(before.Neg()) {
				shortProceeds = mv.CostBasis.Neg()
			}
			mv.RealisedGain = mv.RealisedGain.Add(shortProceeds.Sub(coverCost))
			mv.CostBasis = mv.CostBasis.Add(shortProceeds).Add(value.Sub(coverCost))
		} else {
			mv.CostBasis = mv.CostBasis.Add(value)
		}
		resetAverage(mv, after)
	})
}

// dispose removes qty units realising amount (in trade currency). Gains are
// realised at average cost on the units actually held; anything beyond that
// opens or extends a short position.
func dispose(trn domain.Transaction, portfolio domain.Portfolio, position *domain.Position,
	qty, amount decimal.Decimal) (frameRates, error) {
	before := position.Quantity.Total()
	position.Quantity.Sold = position.Quantity.Sold.Sub(qty)
	after := position.Quantity.Total()

	held := decimal.Max(before, decimal.Zero)
	disposed := decimal.Min(qty, held)
	short := qty.Sub(disposed)

	return eachFrame(trn, portfolio, position, func(mv *domain.MoneyValues, rate decimal.Decimal) {
		value := amount.Mul(rate)
		mv.Sales = mv.Sales.Add(value)
		mv.Fees = mv.Fees.Add(trn.Fees.Mul(rate))
		if disposed.IsPositive() {
			cost := mv.AverageCost.Mul(disposed)
			if disposed.Equal(held) {
				cost = mv.CostBasis
			}
			mv.RealisedGain = mv.RealisedGain.Add(portion(value, disposed, qty).Sub(cost))
			mv.CostBasis = mv.CostBasis.Sub(cost)
		}
		if short.IsPositive() {
			mv.CostBasis = mv.CostBasis.Sub(portion(value, short, qty))
		}
		resetAverage(mv, after)
	})
}

// resetAverage recomputes average cost for the quantity now held
func resetAverage(mv *domain.MoneyValues, total decimal.Decimal) {
	if total.IsZero() {
		mv.CostBasis = decimal.Zero
		mv.AverageCost = decimal.Zero
		return
	}
	mv.AverageCost = mv.CostBasis.Div(total)
}

// portion returns the share of value attributable to part of whole
func portion(value, part, whole decimal.Decimal) decimal.Decimal {
	if part.Equal(whole) {
		return value
	}
	return value.Mul(part).Div(whole)
}

// addFlow records money moving in (positive) or out (negative) of position
func addFlow(position *domain.Position, date string, amount decimal.Decimal, rates frameRates) {
	position.CashFlows = append(position.CashFlows, domain.CashFlow{
		Date:      date,
		Trade:     amount,
		Portfolio: amount.Mul(rates.portfolio),
		Base:      amount.Mul(rates.base),
	})
}
