package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransactionSource supplies the transaction history positions are built from
type TransactionSource interface {
	// Transactions returns every transaction matching the query, in any order
	Transactions(ctx context.Context, query TrnQuery) ([]Transaction, error)
}

// PriceSource supplies market prices.
// Assets without a price on the date are absent from the result; that is
// not an error.
type PriceSource interface {
	GetPrices(ctx context.Context, assets []Asset, date string) (map[string]PriceData, error)
}

// FxSource supplies exchange rates.
// Every requested pair must be present in the result or an error returned.
type FxSource interface {
	GetRates(ctx context.Context, pairs []CurrencyPair, date string) (map[CurrencyPair]decimal.Decimal, error)
}

// TaxRateProvider returns the withholding tax rate applied to dividends paid
// in a currency
type TaxRateProvider interface {
	DividendTaxRate(ccy Currency) decimal.Decimal
}
