package corporate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/modules/accumulation"
	"github.com/aristath/valuator/internal/modules/valuation"
	testingpkg "github.com/aristath/valuator/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usd      = testingpkg.NewSingleCurrencyPortfolio(domain.CurrencyUSD)
	msft     = testingpkg.NewAssetFixture("MSFT", domain.CurrencyUSD)
	fixedNow = func() time.Time { return time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC) }
)

type stubRecorder struct {
	recorded []domain.Transaction
	err      error
}

func (s *stubRecorder) Record(_ context.Context, trns []domain.Transaction) ([]domain.Transaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.recorded = append(s.recorded, trns...)
	return trns, nil
}

func newService(recorder Recorder, trns ...domain.Transaction) *Service {
	source := testingpkg.NewMockTransactionSource(trns...)
	builder := valuation.NewValuationService(source, testingpkg.NewMockFxSource(), nil, nil, fixedNow, nil, zerolog.Nop())
	resolver := accumulation.NewEventResolver(accumulation.TaxRates{domain.CurrencyUSD: decimal.RequireFromString("0.30")}, fixedNow)
	return NewService(builder, resolver, recorder, zerolog.Nop())
}

func dividend(recordDate, payDate string) accumulation.CorporateEvent {
	return accumulation.CorporateEvent{
		ID:         "EV-1",
		Type:       domain.TrnDividend,
		Asset:      msft,
		RecordDate: recordDate,
		PayDate:    payDate,
		Rate:       decimal.RequireFromString("0.2625"),
	}
}

func TestResolve_DividendOnHolding(t *testing.T) {
	recorder := &stubRecorder{}
	service := newService(recorder, testingpkg.NewBuy(usd, msft, "2024-01-02", "80", "100"))

	result, err := service.Resolve(context.Background(), Request{Portfolio: usd, Event: dividend("2024-02-01", "2024-02-20"), Record: true})
	require.NoError(t, err)

	trn := result.Transaction
	assert.True(t, result.Recorded)
	assert.Equal(t, domain.TrnDividend, trn.Type)
	assert.Equal(t, "14.7", trn.TradeAmount.String())
	assert.Equal(t, "6.3", trn.Tax.String())
	assert.Equal(t, "80", trn.Quantity.String())
	assert.Equal(t, "2024-02-20", trn.TradeDate)
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, "EV-1:"+usd.ID, recorder.recorded[0].ID)
}

func TestResolve_HoldingCountedOnRecordDate(t *testing.T) {
	// Bought after the record date, so nothing is owed
	service := newService(nil, testingpkg.NewBuy(usd, msft, "2024-02-05", "80", "100"))

	result, err := service.Resolve(context.Background(), Request{Portfolio: usd, Event: dividend("2024-02-01", "2024-02-20")})
	require.NoError(t, err)
	assert.Equal(t, domain.TrnIgnore, result.Transaction.Type)
	assert.False(t, result.Recorded)
}

func TestResolve_ForwardDatedIsIgnoredAndNotRecorded(t *testing.T) {
	recorder := &stubRecorder{}
	service := newService(recorder, testingpkg.NewBuy(usd, msft, "2024-01-02", "80", "100"))

	result, err := service.Resolve(context.Background(), Request{Portfolio: usd, Event: dividend("2024-03-01", "2024-04-01"), Record: true})
	require.NoError(t, err)
	assert.Equal(t, domain.TrnIgnore, result.Transaction.Type)
	assert.False(t, result.Recorded)
	assert.Empty(t, recorder.recorded)
}

func TestResolve_Split(t *testing.T) {
	service := newService(nil, testingpkg.NewBuy(usd, msft, "2024-01-02", "10", "100"))
	event := accumulation.CorporateEvent{
		ID: "EV-2", Type: domain.TrnSplit, Asset: msft, RecordDate: "2024-02-01",
		Rate: decimal.NewFromInt(10),
	}

	result, err := service.Resolve(context.Background(), Request{Portfolio: usd, Event: event})
	require.NoError(t, err)
	assert.Equal(t, domain.TrnSplit, result.Transaction.Type)
	assert.Equal(t, "10", result.Transaction.Quantity.String())
}

func TestResolve_Errors(t *testing.T) {
	held := testingpkg.NewBuy(usd, msft, "2024-01-02", "80", "100")

	_, err := newService(nil, held).Resolve(context.Background(), Request{Portfolio: usd, Event: dividend("2024-02-01", ""), Record: true})
	assert.True(t, domain.IsBusiness(err))

	bad := dividend("2024-02-01", "")
	bad.Type = domain.TrnBuy
	_, err = newService(nil, held).Resolve(context.Background(), Request{Portfolio: usd, Event: bad})
	assert.True(t, domain.IsInvalidInput(err))

	failing := errors.New("disk full")
	_, err = newService(&stubRecorder{err: failing}, held).Resolve(context.Background(), Request{Portfolio: usd, Event: dividend("2024-02-01", ""), Record: true})
	assert.ErrorIs(t, err, failing)
}
