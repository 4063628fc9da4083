// Package domain provides core domain models and types.
package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyAUD Currency = "AUD"
	CurrencyNZD Currency = "NZD"
)

// Frame identifies the currency a set of money values is reported in.
type Frame string

const (
	// FrameTrade reports in the asset's native trading currency
	FrameTrade Frame = "TRADE"
	// FramePortfolio reports in the portfolio's reference currency
	FramePortfolio Frame = "PORTFOLIO"
	// FrameBase reports in the owner's base reporting currency
	FrameBase Frame = "BASE"
)

// Frames lists every frame in reporting order. Loops over frames must use
// this slice so results never depend on map iteration order.
var Frames = []Frame{FrameTrade, FramePortfolio, FrameBase}

// CashMarket is the market code used for cash balances
const CashMarket = "CASH"

// Portfolio is the owner of a set of positions
type Portfolio struct {
	ID       string   `json:"id"`
	Code     string   `json:"code"`
	Name     string   `json:"name,omitempty"`
	Currency Currency `json:"currency"` // PORTFOLIO frame
	Base     Currency `json:"base"`     // BASE frame
}

// Validate checks the portfolio descriptor carries what valuation needs
func (p Portfolio) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return InvalidInput("portfolio id is required")
	}
	if err := ValidateCurrency(p.Currency); err != nil {
		return InvalidInput("portfolio %s: %s", p.ID, err.Error())
	}
	if err := ValidateCurrency(p.Base); err != nil {
		return InvalidInput("portfolio %s base: %s", p.ID, err.Error())
	}
	return nil
}

// FrameCurrency returns the currency that frame f reports in for an asset
// traded in trade.
func (p Portfolio) FrameCurrency(f Frame, trade Currency) Currency {
	switch f {
	case FramePortfolio:
		return p.Currency
	case FrameBase:
		return p.Base
	default:
		return trade
	}
}

// Asset identifies something a position can be held in
type Asset struct {
	ID       string   `json:"id"`
	Code     string   `json:"code"`
	Market   string   `json:"market"`
	Currency Currency `json:"currency"`
}

// CashAsset returns the asset representing a cash balance in ccy
func CashAsset(ccy Currency) Asset {
	return Asset{
		ID:       CashMarket + ":" + string(ccy),
		Code:     string(ccy),
		Market:   CashMarket,
		Currency: ccy,
	}
}

// IsCash reports whether the asset is a cash balance
func (a Asset) IsCash() bool {
	return a.Market == CashMarket
}

// PriceData is a market price snapshot for one asset on one date
type PriceData struct {
	Date          string          `json:"date"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	Dividend      decimal.Decimal `json:"dividend"`
	Split         decimal.Decimal `json:"split"`
}

// CurrencyPair is a from/to FX pair
type CurrencyPair struct {
	From Currency `json:"from"`
	To   Currency `json:"to"`
}

// String returns the pair as FROM:TO
func (p CurrencyPair) String() string {
	return string(p.From) + ":" + string(p.To)
}

// IsIdentity reports whether the pair converts a currency to itself
func (p CurrencyPair) IsIdentity() bool {
	return p.From == p.To
}

// Inverse returns the TO:FROM pair
func (p CurrencyPair) Inverse() CurrencyPair {
	return CurrencyPair{From: p.To, To: p.From}
}

// CachedSnapshot is one day of portfolio performance figures
type CachedSnapshot struct {
	PortfolioID         string          `json:"portfolioId"`
	ValuationDate       string          `json:"valuationDate"`
	MarketValue         decimal.Decimal `json:"marketValue"`
	ExternalCashFlow    decimal.Decimal `json:"externalCashFlow"`
	NetContributions    decimal.Decimal `json:"netContributions"`
	CumulativeDividends decimal.Decimal `json:"cumulativeDividends"`
	CreatedAt           int64           `json:"createdAt"`
}
