// Package marketdata stores price and FX overrides. Stored values take
// precedence over provider data for the exact date they carry.
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/valuator/internal/database"
	"github.com/aristath/valuator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StoredPrice is a price override for one asset on one date
type StoredPrice struct {
	AssetID string `json:"assetId"`
	domain.PriceData
}

// StoredRate is an FX override for one pair on one date
type StoredRate struct {
	From domain.Currency `json:"from"`
	To   domain.Currency `json:"to"`
	Date string          `json:"date"`
	Rate decimal.Decimal `json:"rate"`
}

// Pair returns the currency pair the rate converts
func (r StoredRate) Pair() domain.CurrencyPair {
	return domain.CurrencyPair{From: r.From, To: r.To}
}

// Repository reads and writes stored prices and rates in the ledger database.
// It is the first tier of the price and FX sources.
type Repository struct {
	ledgerDB *sql.DB
	now      func() time.Time
	log      zerolog.Logger
}

// NewRepository creates a new market data repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		now:      time.Now,
		log:      log.With().Str("repo", "marketdata").Logger(),
	}
}

// SavePrices upserts prices in one database transaction
func (r *Repository) SavePrices(ctx context.Context, prices []StoredPrice) error {
	updatedAt := r.now().Unix()
	err := database.WithTransaction(ctx, r.ledgerDB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO stored_prices
			(asset_id, price_date, open, high, low, close, previous_close, dividend, split, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare price insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			if _, err := stmt.ExecContext(ctx,
				p.AssetID, p.Date,
				p.Open.String(), p.High.String(), p.Low.String(), p.Close.String(),
				p.PreviousClose.String(), p.Dividend.String(), p.Split.String(),
				updatedAt,
			); err != nil {
				return fmt.Errorf("failed to save price %s@%s: %w", p.AssetID, p.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Debug().Int("count", len(prices)).Msg("Saved prices")
	return nil
}

// GetPrices implements domain.PriceSource over stored prices. Assets without
// a stored price on date are absent from the result.
func (r *Repository) GetPrices(ctx context.Context, assets []domain.Asset, date string) (map[string]domain.PriceData, error) {
	result := make(map[string]domain.PriceData, len(assets))
	if len(assets) == 0 {
		return result, nil
	}

	ids := make([]interface{}, 0, len(assets)+1)
	ids = append(ids, date)
	for _, a := range assets {
		ids = append(ids, a.ID)
	}
	rows, err := r.ledgerDB.QueryContext(ctx, `
		SELECT asset_id, price_date, open, high, low, close, previous_close, dividend, split
		FROM stored_prices
		WHERE price_date = ? AND asset_id IN (`+placeholders(len(assets))+`)
	`, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stored prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var assetID string
		var price domain.PriceData
		var open, high, low, closePrice, previous, dividend, split string
		if err := rows.Scan(&assetID, &price.Date, &open, &high, &low, &closePrice, &previous, &dividend, &split); err != nil {
			return nil, fmt.Errorf("failed to scan stored price: %w", err)
		}
		if err := parseDecimals(
			target{&price.Open, open}, target{&price.High, high}, target{&price.Low, low},
			target{&price.Close, closePrice}, target{&price.PreviousClose, previous},
			target{&price.Dividend, dividend}, target{&price.Split, split},
		); err != nil {
			return nil, fmt.Errorf("stored price %s@%s: %w", assetID, price.Date, err)
		}
		result[assetID] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stored prices: %w", err)
	}
	return result, nil
}

// SaveRates upserts FX rates in one database transaction
func (r *Repository) SaveRates(ctx context.Context, rates []StoredRate) error {
	updatedAt := r.now().Unix()
	err := database.WithTransaction(ctx, r.ledgerDB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO stored_fx_rates (from_currency, to_currency, rate_date, rate, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare rate insert: %w", err)
		}
		defer stmt.Close()

		for _, rate := range rates {
			if _, err := stmt.ExecContext(ctx,
				string(rate.From), string(rate.To), rate.Date, rate.Rate.String(), updatedAt,
			); err != nil {
				return fmt.Errorf("failed to save rate %s@%s: %w", rate.Pair(), rate.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Debug().Int("count", len(rates)).Msg("Saved fx rates")
	return nil
}

// FindRates returns the stored rates for pairs on date. A pair stored the
// other way round is returned inverted. Pairs with no stored rate are absent;
// use GetRates for the all-or-error contract.
func (r *Repository) FindRates(ctx context.Context, pairs []domain.CurrencyPair, date string) (map[domain.CurrencyPair]decimal.Decimal, error) {
	result := make(map[domain.CurrencyPair]decimal.Decimal, len(pairs))
	if len(pairs) == 0 {
		return result, nil
	}

	rows, err := r.ledgerDB.QueryContext(ctx,
		`SELECT from_currency, to_currency, rate FROM stored_fx_rates WHERE rate_date = ?`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query stored fx rates: %w", err)
	}
	defer rows.Close()

	stored := make(map[domain.CurrencyPair]decimal.Decimal)
	for rows.Next() {
		var from, to, raw string
		if err := rows.Scan(&from, &to, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan stored fx rate: %w", err)
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("stored fx rate %s:%s@%s: invalid decimal %q: %w", from, to, date, raw, err)
		}
		stored[domain.CurrencyPair{From: domain.Currency(from), To: domain.Currency(to)}] = rate
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stored fx rates: %w", err)
	}

	for _, pair := range pairs {
		if pair.IsIdentity() {
			result[pair] = domain.One
			continue
		}
		if rate, ok := stored[pair]; ok && rate.IsPositive() {
			result[pair] = rate
			continue
		}
		if rate, ok := stored[pair.Inverse()]; ok && rate.IsPositive() {
			result[pair] = domain.One.DivRound(rate, domain.RateScale)
		}
	}
	return result, nil
}

// GetRates implements domain.FxSource over stored rates
func (r *Repository) GetRates(ctx context.Context, pairs []domain.CurrencyPair, date string) (map[domain.CurrencyPair]decimal.Decimal, error) {
	rates, err := r.FindRates(ctx, pairs, date)
	if err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		if _, ok := rates[pair]; !ok {
			return nil, domain.NewBusinessError("no stored fx rate for %s on %s", pair, date)
		}
	}
	return rates, nil
}

type target struct {
	dst *decimal.Decimal
	src string
}

func parseDecimals(targets ...target) error {
	for _, t := range targets {
		v, err := decimal.NewFromString(t.src)
		if err != nil {
			return fmt.Errorf("invalid decimal %q: %w", t.src, err)
		}
		*t.dst = v
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
