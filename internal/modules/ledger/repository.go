// Package ledger stores the transaction history positions are built from.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/valuator/internal/database"
	"github.com/aristath/valuator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, portfolio_id, trn_type, status,
	asset_id, asset_code, asset_market, asset_currency,
	trade_date, sequence, quantity, price, trade_amount, trade_currency, fees, tax,
	cash_asset_id, cash_asset_code, cash_asset_market, cash_asset_currency,
	cash_amount, cash_currency,
	trade_portfolio_rate, trade_base_rate, trade_cash_rate, comments`

// TransactionRepository handles transaction database operations. It is the
// TransactionSource valuation reads from.
type TransactionRepository struct {
	ledgerDB *sql.DB
	now      func() time.Time
	log      zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(ledgerDB *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		ledgerDB: ledgerDB,
		now:      time.Now,
		log:      log.With().Str("repo", "transaction").Logger(),
	}
}

// Transactions returns the transactions matching query ordered by trade
// date, sequence and id
func (r *TransactionRepository) Transactions(ctx context.Context, query domain.TrnQuery) ([]domain.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE portfolio_id = ?`
	args := []interface{}{query.PortfolioID}
	if query.AssetID != "" {
		q += " AND asset_id = ?"
		args = append(args, query.AssetID)
	}
	if query.ToDate != "" {
		q += " AND trade_date <= ?"
		args = append(args, query.ToDate)
	}
	q += " ORDER BY trade_date, sequence, id"

	rows, err := r.ledgerDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var trns []domain.Transaction
	for rows.Next() {
		trn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		trns = append(trns, trn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return trns, nil
}

// Get returns one transaction of a portfolio
func (r *TransactionRepository) Get(ctx context.Context, portfolioID, id string) (*domain.Transaction, error) {
	row := r.ledgerDB.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE portfolio_id = ? AND id = ?`,
		portfolioID, id)
	trn, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return &trn, nil
}

// Replaced is where a transaction sat before Save overwrote it
type Replaced struct {
	PortfolioID string
	TradeDate   string
}

// Save upserts trns in one database transaction. It returns the portfolio
// and trade date each replaced row carried, keyed by id.
func (r *TransactionRepository) Save(ctx context.Context, trns []domain.Transaction) (map[string]Replaced, error) {
	previous := make(map[string]Replaced)
	createdAt := r.now().Unix()

	err := database.WithTransaction(ctx, r.ledgerDB, func(tx *sql.Tx) error {
		for _, trn := range trns {
			var old Replaced
			err := tx.QueryRowContext(ctx,
				`SELECT portfolio_id, trade_date FROM transactions WHERE id = ?`, trn.ID,
			).Scan(&old.PortfolioID, &old.TradeDate)
			switch {
			case err == sql.ErrNoRows:
			case err != nil:
				return fmt.Errorf("failed to look up transaction %s: %w", trn.ID, err)
			default:
				if _, seen := previous[trn.ID]; !seen {
					previous[trn.ID] = old
				}
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO transactions (`+transactionColumns+`, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				transactionArgs(trn, createdAt)...,
			); err != nil {
				return fmt.Errorf("failed to save transaction %s: %w", trn.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Debug().Int("count", len(trns)).Msg("Saved transactions")
	return previous, nil
}

// Delete removes one transaction and returns it
func (r *TransactionRepository) Delete(ctx context.Context, portfolioID, id string) (*domain.Transaction, error) {
	trn, err := r.Get(ctx, portfolioID, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.ledgerDB.ExecContext(ctx,
		`DELETE FROM transactions WHERE portfolio_id = ? AND id = ?`, portfolioID, id,
	); err != nil {
		return nil, fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	return trn, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (domain.Transaction, error) {
	var trn domain.Transaction
	var trnType, status, assetCurrency, tradeCurrency, cashCurrency string
	var quantity, price, tradeAmount, fees, tax, cashAmount string
	var portfolioRate, baseRate, cashRate string
	var cashID, cashCode, cashMarket, cashAssetCurrency sql.NullString

	if err := row.Scan(
		&trn.ID, &trn.PortfolioID, &trnType, &status,
		&trn.Asset.ID, &trn.Asset.Code, &trn.Asset.Market, &assetCurrency,
		&trn.TradeDate, &trn.Sequence, &quantity, &price, &tradeAmount, &tradeCurrency, &fees, &tax,
		&cashID, &cashCode, &cashMarket, &cashAssetCurrency,
		&cashAmount, &cashCurrency,
		&portfolioRate, &baseRate, &cashRate, &trn.Comments,
	); err != nil {
		return trn, err
	}

	trn.Type = domain.TrnType(trnType)
	trn.Status = domain.TrnStatus(status)
	trn.Asset.Currency = domain.Currency(assetCurrency)
	trn.TradeCurrency = domain.Currency(tradeCurrency)
	trn.CashCurrency = domain.Currency(cashCurrency)
	if cashID.Valid && cashID.String != "" {
		trn.CashAsset = &domain.Asset{
			ID:       cashID.String,
			Code:     cashCode.String,
			Market:   cashMarket.String,
			Currency: domain.Currency(cashAssetCurrency.String),
		}
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&trn.Quantity, quantity},
		{&trn.Price, price},
		{&trn.TradeAmount, tradeAmount},
		{&trn.Fees, fees},
		{&trn.Tax, tax},
		{&trn.CashAmount, cashAmount},
		{&trn.TradePortfolioRate, portfolioRate},
		{&trn.TradeBaseRate, baseRate},
		{&trn.TradeCashRate, cashRate},
	} {
		v, err := decimal.NewFromString(f.src)
		if err != nil {
			return trn, fmt.Errorf("transaction %s: invalid decimal %q: %w", trn.ID, f.src, err)
		}
		*f.dst = v
	}
	return trn, nil
}

func transactionArgs(trn domain.Transaction, createdAt int64) []interface{} {
	var cashID, cashCode, cashMarket, cashCurrency interface{}
	if trn.CashAsset != nil {
		cashID = trn.CashAsset.ID
		cashCode = trn.CashAsset.Code
		cashMarket = trn.CashAsset.Market
		cashCurrency = string(trn.CashAsset.Currency)
	}
	status := trn.Status
	if status == "" {
		status = domain.TrnConfirmed
	}
	return []interface{}{
		trn.ID, trn.PortfolioID, string(trn.Type), string(status),
		trn.Asset.ID, trn.Asset.Code, trn.Asset.Market, string(trn.Asset.Currency),
		trn.TradeDate, trn.Sequence,
		trn.Quantity.String(), trn.Price.String(), trn.TradeAmount.String(), string(trn.TradeCurrency),
		trn.Fees.String(), trn.Tax.String(),
		cashID, cashCode, cashMarket, cashCurrency,
		trn.CashAmount.String(), string(trn.CashCurrency),
		trn.TradePortfolioRate.String(), trn.TradeBaseRate.String(), trn.TradeCashRate.String(),
		trn.Comments,
		createdAt,
	}
}
