package accumulation

import (
	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
)

type buyBehaviour struct{}

func (buyBehaviour) Apply(trn domain.Transaction, portfolio domain.Portfolio, position *domain.Position) error {
	qty := trn.Quantity.Abs()
	amount := trn.TradeAmount.Abs()
	if amount.IsZero() {
		amount = qty.Mul(trn.Price).Add(trn.Fees)
	}

	rates, err := acquire(trn, portfolio, position, qty, amount)
	if err != nil {
		return err
	}
	addFlow(position, trn.TradeDate, amount.Neg(), rates)
	return nil
}

type sellBehaviour struct{}

func (sellBehaviour) Apply(trn domain.Transaction, portfolio domain.Portfolio, position *domain.Position) error {
	qty := trn.Quantity.Abs()
	amount := trn.TradeAmount.Abs()
	if amount.IsZero() {
		amount = decimal.Max(qty.Mul(trn.Price).Sub(trn.Fees), decimal.Zero)
	}

	rates, err := dispose(trn, portfolio, position, qty, amount)
	if err != nil {
		return err
	}
	addFlow(position, trn.TradeDate, amount, rates)
	return nil
}
