package accumulation

import (
	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
)

// Cash positions move 1:1 with the amount; their unit price is always 1.

type depositBehaviour struct{}

func (depositBehaviour) Apply(trn domain.Transaction, portfolio domain.Portfolio, position *domain.Position) error {
	amount := cashAmount(trn)
	_, err := acquire(trn, portfolio, position, amount, amount)
	return err
}

type withdrawalBehaviour struct{}

func (withdrawalBehaviour) Apply(trn domain.Transaction, portfolio domain.Portfolio, position *domain.Position) error {
	amount := cashAmount(trn)
	_, err := dispose(trn, portfolio, position, amount, amount)
	return err
}

type ignoreBehaviour struct{}

func (ignoreBehaviour) Apply(domain.Transaction, domain.Portfolio, *domain.Position) error {
	return nil
}

func cashAmount(trn domain.Transaction) decimal.Decimal {
	if !trn.TradeAmount.IsZero() {
		return trn.TradeAmount.Abs()
	}
	return trn.Quantity.Abs()
}
