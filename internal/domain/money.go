package domain

import (
	"encoding/json"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var (
	// One is the rate between a currency and itself
	One = decimal.NewFromInt(1)
	// Hundred is used for percentage figures
	Hundred = decimal.NewFromInt(100)
)

// RateScale is the number of decimal places kept on derived FX rates
const RateScale int32 = 10

// ValidateCurrency checks c is a known ISO currency code
func ValidateCurrency(c Currency) error {
	if c == "" {
		return InvalidInput("currency is required")
	}
	if money.GetCurrency(string(c)) == nil {
		return InvalidInput("unknown currency %q", string(c))
	}
	return nil
}

// RoundCash rounds amount to the number of minor units c uses
func RoundCash(amount decimal.Decimal, c Currency) decimal.Decimal {
	fraction := 2
	if cur := money.GetCurrency(string(c)); cur != nil {
		fraction = cur.Fraction
	}
	return amount.Round(int32(fraction))
}

// QuantityValues tracks how a position's quantity was arrived at.
// Sold is held as a negative figure so Total is a plain sum.
type QuantityValues struct {
	Purchased  decimal.Decimal `json:"purchased"`
	Sold       decimal.Decimal `json:"sold"`
	Adjustment decimal.Decimal `json:"adjustment"`
}

// Total returns purchased + sold + adjustment
func (q QuantityValues) Total() decimal.Decimal {
	return q.Purchased.Add(q.Sold).Add(q.Adjustment)
}

// Precision returns the display precision hint for the total
func (q QuantityValues) Precision() int32 {
	total := q.Total()
	if total.Equal(total.Truncate(0)) {
		return 0
	}
	return 3
}

// MarshalJSON adds the derived total and precision to the encoded form
func (q QuantityValues) MarshalJSON() ([]byte, error) {
	type alias QuantityValues
	return json.Marshal(struct {
		alias
		Total     decimal.Decimal `json:"total"`
		Precision int32           `json:"precision"`
	}{
		alias:     alias(q),
		Total:     q.Total(),
		Precision: q.Precision(),
	})
}

// UnmarshalJSON ignores the derived fields
func (q *QuantityValues) UnmarshalJSON(data []byte) error {
	type alias QuantityValues
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*q = QuantityValues(a)
	return nil
}

// MoneyValues holds a position's money figures in a single currency frame
type MoneyValues struct {
	Currency       Currency        `json:"currency"`
	Purchases      decimal.Decimal `json:"purchases"`
	Sales          decimal.Decimal `json:"sales"`
	CostBasis      decimal.Decimal `json:"costBasis"`
	AverageCost    decimal.Decimal `json:"averageCost"`
	Fees           decimal.Decimal `json:"fees"`
	Tax            decimal.Decimal `json:"tax"`
	Dividends      decimal.Decimal `json:"dividends"`
	RealisedGain   decimal.Decimal `json:"realisedGain"`
	UnrealisedGain decimal.Decimal `json:"unrealisedGain"`
	TotalGain      decimal.Decimal `json:"totalGain"`
	GainOnDay      decimal.Decimal `json:"gainOnDay"`
	MarketValue    decimal.Decimal `json:"marketValue"`
	Weight         decimal.Decimal `json:"weight"`
	IRR            decimal.Decimal `json:"irr"`
	PriceData      *PriceData      `json:"priceData,omitempty"`
}

// NewMoneyValues creates an empty frame in currency c
func NewMoneyValues(c Currency) *MoneyValues {
	return &MoneyValues{Currency: c}
}

// Totals is the per-frame reduction over a Positions ledger
type Totals struct {
	Currency    Currency        `json:"currency"`
	MarketValue decimal.Decimal `json:"marketValue"`
	Purchases   decimal.Decimal `json:"purchases"`
	Sales       decimal.Decimal `json:"sales"`
	Gain        decimal.Decimal `json:"gain"`
	Income      decimal.Decimal `json:"income"`
	IRR         decimal.Decimal `json:"irr"`
}

// CashFlow is money moving in or out of a position, expressed in each frame.
// Money invested is negative, money returned is positive.
type CashFlow struct {
	Date      string          `json:"date"`
	Trade     decimal.Decimal `json:"trade"`
	Portfolio decimal.Decimal `json:"portfolio"`
	Base      decimal.Decimal `json:"base"`
}

// Amount returns the flow expressed in frame f
func (c CashFlow) Amount(f Frame) decimal.Decimal {
	switch f {
	case FramePortfolio:
		return c.Portfolio
	case FrameBase:
		return c.Base
	default:
		return c.Trade
	}
}
