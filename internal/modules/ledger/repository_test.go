package ledger

import (
	"context"
	"testing"

	"github.com/aristath/valuator/internal/domain"
	testingpkg "github.com/aristath/valuator/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	portfolio = testingpkg.NewPortfolioFixture()
	msft      = testingpkg.NewAssetFixture("MSFT", domain.CurrencyUSD)
	aapl      = testingpkg.NewAssetFixture("AAPL", domain.CurrencyUSD)
)

func newRepository(t *testing.T) *TransactionRepository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)
	return NewTransactionRepository(db.Conn(), zerolog.Nop())
}

func TestRepository_RoundTrip(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	cash := domain.CashAsset(domain.CurrencyNZD)
	trn := testingpkg.NewBuy(portfolio, msft, "2024-01-02", "10", "101.25")
	trn.Fees = decimal.RequireFromString("4.95")
	trn.CashAsset = &cash
	trn.CashAmount = decimal.RequireFromString("-1650.87")
	trn.CashCurrency = domain.CurrencyNZD
	trn.TradePortfolioRate = decimal.RequireFromString("1")
	trn.TradeBaseRate = decimal.RequireFromString("1.6234")
	trn.Comments = "first lot"

	_, err := repo.Save(ctx, []domain.Transaction{trn})
	require.NoError(t, err)

	got, err := repo.Get(ctx, portfolio.ID, trn.ID)
	require.NoError(t, err)
	assert.Equal(t, trn.ID, got.ID)
	assert.Equal(t, domain.TrnBuy, got.Type)
	assert.Equal(t, domain.TrnConfirmed, got.Status)
	assert.Equal(t, msft, got.Asset)
	assert.Equal(t, "1012.5", got.TradeAmount.String())
	assert.Equal(t, "4.95", got.Fees.String())
	assert.Equal(t, "-1650.87", got.CashAmount.String())
	assert.Equal(t, "1.6234", got.TradeBaseRate.String())
	require.NotNil(t, got.CashAsset)
	assert.Equal(t, cash, *got.CashAsset)
	assert.Equal(t, domain.CurrencyNZD, got.CashCurrency)
	assert.Equal(t, "first lot", got.Comments)
}

func TestRepository_TransactionsFilterAndOrder(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	late := testingpkg.NewBuy(portfolio, msft, "2024-03-01", "1", "1")
	early := testingpkg.NewBuy(portfolio, aapl, "2024-01-01", "1", "1")
	middle := testingpkg.NewSell(portfolio, msft, "2024-02-01", "1", "1")
	other := testingpkg.NewBuy(domain.Portfolio{ID: "P2"}, msft, "2024-01-01", "1", "1")
	_, err := repo.Save(ctx, []domain.Transaction{late, early, middle, other})
	require.NoError(t, err)

	ids := func(trns []domain.Transaction) []string {
		out := make([]string, 0, len(trns))
		for _, trn := range trns {
			out = append(out, trn.ID)
		}
		return out
	}

	all, err := repo.Transactions(ctx, domain.TrnQuery{PortfolioID: portfolio.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{early.ID, middle.ID, late.ID}, ids(all))

	upTo, err := repo.Transactions(ctx, domain.TrnQuery{PortfolioID: portfolio.ID, ToDate: "2024-02-01"})
	require.NoError(t, err)
	assert.Equal(t, []string{early.ID, middle.ID}, ids(upTo))

	msftOnly, err := repo.Transactions(ctx, domain.TrnQuery{PortfolioID: portfolio.ID, AssetID: msft.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{middle.ID, late.ID}, ids(msftOnly))

	none, err := repo.Transactions(ctx, domain.TrnQuery{PortfolioID: "P9"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_SaveReportsReplacedDates(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	trn := testingpkg.NewBuy(portfolio, msft, "2024-01-10", "1", "1")
	previous, err := repo.Save(ctx, []domain.Transaction{trn})
	require.NoError(t, err)
	assert.Empty(t, previous)

	trn.TradeDate = "2024-02-10"
	previous, err = repo.Save(ctx, []domain.Transaction{trn})
	require.NoError(t, err)
	assert.Equal(t, map[string]Replaced{trn.ID: {PortfolioID: portfolio.ID, TradeDate: "2024-01-10"}}, previous)

	all, err := repo.Transactions(ctx, domain.TrnQuery{PortfolioID: portfolio.ID})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "2024-02-10", all[0].TradeDate)
}

func TestRepository_GetAndDelete(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, portfolio.ID, "missing")
	assert.True(t, domain.IsNotFound(err))

	trn := testingpkg.NewBuy(portfolio, msft, "2024-01-10", "1", "1")
	_, err = repo.Save(ctx, []domain.Transaction{trn})
	require.NoError(t, err)

	// Wrong portfolio cannot delete it
	_, err = repo.Delete(ctx, "P2", trn.ID)
	assert.True(t, domain.IsNotFound(err))

	deleted, err := repo.Delete(ctx, portfolio.ID, trn.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10", deleted.TradeDate)

	_, err = repo.Get(ctx, portfolio.ID, trn.ID)
	assert.True(t, domain.IsNotFound(err))
}
