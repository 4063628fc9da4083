package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TrnType tags what a transaction does to a position
type TrnType string

const (
	TrnBuy        TrnType = "BUY"
	TrnSell       TrnType = "SELL"
	TrnDividend   TrnType = "DIVI"
	TrnSplit      TrnType = "SPLIT"
	TrnDeposit    TrnType = "DEPOSIT"
	TrnWithdrawal TrnType = "WITHDRAWAL"
	// TrnFxBuy moves cash between two currencies: the asset leg is credited,
	// the cash leg debited.
	TrnFxBuy  TrnType = "FX_BUY"
	TrnIgnore TrnType = "IGNORE"
)

// TrnTypes lists every transaction type
var TrnTypes = []TrnType{
	TrnBuy, TrnSell, TrnDividend, TrnSplit,
	TrnDeposit, TrnWithdrawal, TrnFxBuy, TrnIgnore,
}

// ParseTrnType parses a transaction type tag, case-insensitively
func ParseTrnType(s string) (TrnType, error) {
	candidate := TrnType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range TrnTypes {
		if t == candidate {
			return t, nil
		}
	}
	return "", InvalidInput("unknown transaction type %q", s)
}

// IsCashMovement reports whether the type moves cash rather than an asset
func (t TrnType) IsCashMovement() bool {
	return t == TrnDeposit || t == TrnWithdrawal || t == TrnFxBuy
}

// TrnStatus is the lifecycle state of a transaction
type TrnStatus string

const (
	TrnConfirmed TrnStatus = "CONFIRMED"
	TrnProposed  TrnStatus = "PROPOSED"
	TrnCancelled TrnStatus = "CANCELLED"
)

// Transaction is an immutable input record describing one financial event.
// Rates convert trade currency amounts into the portfolio, base and cash
// currencies; a zero rate means "not resolved".
type Transaction struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolioId"`
	Type        TrnType   `json:"trnType"`
	Status      TrnStatus `json:"status"`
	Asset       Asset     `json:"asset"`
	TradeDate   string    `json:"tradeDate"`
	Sequence    int64     `json:"sequence"`

	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	TradeAmount   decimal.Decimal `json:"tradeAmount"`
	TradeCurrency Currency        `json:"tradeCurrency"`
	Fees          decimal.Decimal `json:"fees"`
	Tax           decimal.Decimal `json:"tax"`

	CashAsset    *Asset          `json:"cashAsset,omitempty"`
	CashAmount   decimal.Decimal `json:"cashAmount"`
	CashCurrency Currency        `json:"cashCurrency,omitempty"`

	TradePortfolioRate decimal.Decimal `json:"tradePortfolioRate"`
	TradeBaseRate      decimal.Decimal `json:"tradeBaseRate"`
	TradeCashRate      decimal.Decimal `json:"tradeCashRate"`

	Comments string `json:"comments,omitempty"`
}

// IsConfirmed reports whether the transaction should be folded
func (t Transaction) IsConfirmed() bool {
	return t.Status == "" || t.Status == TrnConfirmed
}

// Validate checks the fields every transaction type needs
func (t Transaction) Validate() error {
	if _, err := ParseTrnType(string(t.Type)); err != nil {
		return err
	}
	if t.Type == TrnIgnore {
		return nil
	}
	if strings.TrimSpace(t.Asset.ID) == "" {
		return InvalidInput("transaction %s: asset id is required", t.ID)
	}
	if _, err := ParseDate(t.TradeDate); err != nil {
		return InvalidInput("transaction %s: %s", t.ID, err.Error())
	}
	if err := ValidateCurrency(t.TradeCurrency); err != nil {
		return InvalidInput("transaction %s trade currency: %s", t.ID, err.Error())
	}
	switch t.Type {
	case TrnBuy, TrnSell:
		if t.Quantity.IsZero() {
			return InvalidInput("transaction %s: %s requires a quantity", t.ID, t.Type)
		}
	case TrnSplit:
		if !t.Quantity.IsPositive() {
			return InvalidInput("transaction %s: split ratio must be positive", t.ID)
		}
	case TrnFxBuy:
		if t.CashAsset == nil {
			return InvalidInput("transaction %s: FX_BUY requires a cash asset", t.ID)
		}
	}
	if t.CashAsset != nil && t.CashCurrency != "" {
		if err := ValidateCurrency(t.CashCurrency); err != nil {
			return InvalidInput("transaction %s cash currency: %s", t.ID, err.Error())
		}
	}
	return nil
}

// TrnQuery scopes a transaction lookup. AssetID is optional.
type TrnQuery struct {
	PortfolioID string
	AssetID     string
	ToDate      string
}
