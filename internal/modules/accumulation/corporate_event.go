package accumulation

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/utils"
	"github.com/shopspring/decimal"
)

// CorporateEvent is a resolved dividend or split announced for an asset
type CorporateEvent struct {
	ID         string          `json:"id"`
	Type       domain.TrnType  `json:"trnType"`
	Asset      domain.Asset    `json:"asset"`
	RecordDate string          `json:"recordDate"`
	PayDate    string          `json:"payDate"`
	Rate       decimal.Decimal `json:"rate"` // per-unit dividend or split ratio
}

// Validate checks the event is a dividend or split with usable dates
func (e CorporateEvent) Validate() error {
	if e.Type != domain.TrnDividend && e.Type != domain.TrnSplit {
		return domain.InvalidInput("corporate event %s: unsupported type %q", e.ID, e.Type)
	}
	if strings.TrimSpace(e.Asset.ID) == "" {
		return domain.InvalidInput("corporate event %s: asset id is required", e.ID)
	}
	if _, err := domain.ParseDate(e.RecordDate); err != nil {
		return domain.InvalidInput("corporate event %s record date: %s", e.ID, err.Error())
	}
	if e.PayDate != "" {
		if _, err := domain.ParseDate(e.PayDate); err != nil {
			return domain.InvalidInput("corporate event %s pay date: %s", e.ID, err.Error())
		}
	}
	if !e.Rate.IsPositive() {
		return domain.InvalidInput("corporate event %s: rate must be positive", e.ID)
	}
	return nil
}

func (e CorporateEvent) effectiveDate() string {
	if e.PayDate != "" {
		return e.PayDate
	}
	return e.RecordDate
}

// EventResolver turns a corporate event into the transaction it implies for
// one portfolio's position
type EventResolver struct {
	taxRates domain.TaxRateProvider
	now      func() time.Time
}

// NewEventResolver creates a resolver. now defaults to time.Now.
func NewEventResolver(taxRates domain.TaxRateProvider, now func() time.Time) *EventResolver {
	if now == nil {
		now = time.Now
	}
	if taxRates == nil {
		taxRates = TaxRates{}
	}
	return &EventResolver{taxRates: taxRates, now: now}
}

// Resolve returns a DIVI or SPLIT transaction for the holding in position.
// A position with no quantity, or an event not yet payable, yields IGNORE.
func (r *EventResolver) Resolve(event CorporateEvent, portfolio domain.Portfolio, position *domain.Position) (domain.Transaction, error) {
	if err := event.Validate(); err != nil {
		return domain.Transaction{}, err
	}

	ccy := event.Asset.Currency
	trn := domain.Transaction{
		ID:                 fmt.Sprintf("%s:%s", event.ID, portfolio.ID),
		PortfolioID:        portfolio.ID,
		Type:               domain.TrnIgnore,
		Status:             domain.TrnConfirmed,
		Asset:              event.Asset,
		TradeDate:          event.effectiveDate(),
		TradeCurrency:      ccy,
		TradePortfolioRate: decimal.Zero,
		TradeBaseRate:      decimal.Zero,
	}

	quantity := decimal.Zero
	if position != nil {
		quantity = position.Quantity.Total()
	}
	if quantity.IsZero() {
		trn.Comments = "no holding on record date"
		return trn, nil
	}
	if trn.TradeDate > domain.FormatDate(r.now()) {
		trn.Comments = "event is forward dated"
		return trn, nil
	}

	switch event.Type {
	case domain.TrnDividend:
		gross := domain.RoundCash(event.Rate.Mul(quantity), ccy)
		tax := domain.RoundCash(gross.Mul(r.taxRates.DividendTaxRate(ccy)), ccy)
		trn.Type = domain.TrnDividend
		trn.Quantity = quantity
		trn.Price = event.Rate
		trn.Tax = tax
		trn.TradeAmount = gross.Sub(tax)
	case domain.TrnSplit:
		trn.Type = domain.TrnSplit
		trn.Quantity = event.Rate
	}
	return trn, nil
}

// TaxRates is an immutable dividend withholding table keyed by currency
type TaxRates map[domain.Currency]decimal.Decimal

// DividendTaxRate returns the rate for ccy, or zero
func (t TaxRates) DividendTaxRate(ccy domain.Currency) decimal.Decimal {
	if rate, ok := t[ccy]; ok {
		return rate
	}
	return decimal.Zero
}

// ParseTaxRates parses "USD=0.30,AUD=0.15"
func ParseTaxRates(s string) (TaxRates, error) {
	values, invalid := utils.ParseKeyValues(s)
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid tax rate entry %q, expected CCY=rate", invalid[0])
	}
	rates := TaxRates{}
	for code, raw := range values {
		ccy := domain.Currency(code)
		if err := domain.ValidateCurrency(ccy); err != nil {
			return nil, fmt.Errorf("invalid tax rate for %s: %w", code, err)
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid tax rate for %s: %w", code, err)
		}
		if rate.IsNegative() || rate.GreaterThan(domain.One) {
			return nil, fmt.Errorf("invalid tax rate for %s: rate must be between 0 and 1", code)
		}
		rates[ccy] = rate
	}
	return rates, nil
}
