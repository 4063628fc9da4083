package accumulation

import (
	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
)

// dividendBehaviour records the net amount received. Quantity is untouched;
// the trn's quantity is the holding the dividend was paid on.
type dividendBehaviour struct{}

func (dividendBehaviour) Apply(trn domain.Transaction, portfolio domain.Portfolio, position *domain.Position) error {
	amount := trn.TradeAmount
	if amount.IsZero() {
		amount = trn.Quantity.Mul(trn.Price).Sub(trn.Tax)
	}

	rates, err := eachFrame(trn, portfolio, position, func(mv *domain.MoneyValues, rate decimal.Decimal) {
		mv.Dividends = mv.Dividends.Add(amount.Mul(rate))
		mv.Tax = mv.Tax.Add(trn.Tax.Mul(rate))
	})
	if err != nil {
		return err
	}
	addFlow(position, trn.TradeDate, amount, rates)
	return nil
}
