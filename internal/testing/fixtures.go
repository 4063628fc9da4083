package testing

import (
	"fmt"
	"sync/atomic"

	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
)

// NewPortfolioFixture returns a USD portfolio reporting in NZD
func NewPortfolioFixture() domain.Portfolio {
	return domain.Portfolio{
		ID:       "P1",
		Code:     "TEST",
		Name:     "Test Portfolio",
		Currency: domain.CurrencyUSD,
		Base:     domain.CurrencyNZD,
	}
}

// NewSingleCurrencyPortfolio returns a portfolio whose frames all use ccy
func NewSingleCurrencyPortfolio(ccy domain.Currency) domain.Portfolio {
	return domain.Portfolio{
		ID:       "P-" + string(ccy),
		Code:     "SINGLE",
		Currency: ccy,
		Base:     ccy,
	}
}

// NewAssetFixture returns a listed asset
func NewAssetFixture(code string, ccy domain.Currency) domain.Asset {
	return domain.Asset{
		ID:       "NASDAQ:" + code,
		Code:     code,
		Market:   "NASDAQ",
		Currency: ccy,
	}
}

var sequence int64

// NewBuy returns a confirmed BUY of quantity at price. Trade amount is
// quantity x price and rates are left for resolution.
func NewBuy(portfolio domain.Portfolio, asset domain.Asset, date string, quantity, price string) domain.Transaction {
	return newTrade(domain.TrnBuy, portfolio, asset, date, quantity, price)
}

// NewSell returns a confirmed SELL of quantity at price
func NewSell(portfolio domain.Portfolio, asset domain.Asset, date string, quantity, price string) domain.Transaction {
	return newTrade(domain.TrnSell, portfolio, asset, date, quantity, price)
}

func newTrade(t domain.TrnType, portfolio domain.Portfolio, asset domain.Asset, date, quantity, price string) domain.Transaction {
	n := atomic.AddInt64(&sequence, 1)
	q := decimal.RequireFromString(quantity)
	p := decimal.RequireFromString(price)
	return domain.Transaction{
		ID:            fmt.Sprintf("T%d", n),
		PortfolioID:   portfolio.ID,
		Type:          t,
		Status:        domain.TrnConfirmed,
		Asset:         asset,
		TradeDate:     date,
		Sequence:      n,
		Quantity:      q,
		Price:         p,
		TradeAmount:   q.Mul(p),
		TradeCurrency: asset.Currency,
	}
}

// NewDeposit returns a confirmed DEPOSIT of amount into the ccy cash asset
func NewDeposit(portfolio domain.Portfolio, ccy domain.Currency, date, amount string) domain.Transaction {
	n := atomic.AddInt64(&sequence, 1)
	a := decimal.RequireFromString(amount)
	return domain.Transaction{
		ID:            fmt.Sprintf("T%d", n),
		PortfolioID:   portfolio.ID,
		Type:          domain.TrnDeposit,
		Status:        domain.TrnConfirmed,
		Asset:         domain.CashAsset(ccy),
		TradeDate:     date,
		Sequence:      n,
		Quantity:      a,
		Price:         domain.One,
		TradeAmount:   a,
		TradeCurrency: ccy,
	}
}
