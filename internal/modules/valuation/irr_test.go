package valuation

import (
	"testing"

	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func flow(date, amount string) domain.CashFlow {
	a := d(amount)
	return domain.CashFlow{Date: date, Trade: a, Portfolio: a, Base: a}
}

func TestXIRR_OneYearTenPercent(t *testing.T) {
	irr := XIRR([]domain.CashFlow{flow("2023-01-01", "-1000")}, domain.FrameTrade, d("1100"), "2024-01-01")

	assert.InDelta(t, 0.10, irr.InexactFloat64(), 0.001)
}

func TestXIRR_Loss(t *testing.T) {
	irr := XIRR([]domain.CashFlow{flow("2023-01-01", "-1000")}, domain.FrameTrade, d("800"), "2024-01-01")

	assert.InDelta(t, -0.20, irr.InexactFloat64(), 0.001)
}

func TestXIRR_UsesFrameAmounts(t *testing.T) {
	flows := []domain.CashFlow{{
		Date:      "2023-01-01",
		Trade:     d("-1000"),
		Portfolio: d("-1000"),
		Base:      d("-1500"),
	}}

	trade := XIRR(flows, domain.FrameTrade, d("1100"), "2024-01-01")
	base := XIRR(flows, domain.FrameBase, d("1800"), "2024-01-01")

	assert.InDelta(t, 0.10, trade.InexactFloat64(), 0.001)
	assert.InDelta(t, 0.20, base.InexactFloat64(), 0.001)
}

func TestXIRR_MultipleFlows(t *testing.T) {
	flows := []domain.CashFlow{
		flow("2023-01-01", "-1000"),
		flow("2023-07-01", "-1000"),
		flow("2023-10-01", "100"),
	}

	irr := XIRR(flows, domain.FrameTrade, d("2100"), "2024-01-01")

	assert.True(t, irr.IsPositive())
	assert.True(t, irr.LessThan(d("0.2")))
}

func TestXIRR_NoRate(t *testing.T) {
	tests := []struct {
		name     string
		flows    []domain.CashFlow
		terminal decimal.Decimal
	}{
		{"no flows", nil, d("100")},
		{"no sign change", []domain.CashFlow{flow("2023-01-01", "-1000")}, decimal.Zero},
		{"same day", []domain.CashFlow{flow("2024-01-01", "-1000")}, d("1100")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			irr := XIRR(tt.flows, domain.FrameTrade, tt.terminal, "2024-01-01")
			assert.True(t, irr.IsZero(), "got %s", irr)
		})
	}
}

func TestXIRR_IsDeterministic(t *testing.T) {
	flows := []domain.CashFlow{flow("2021-03-15", "-2500"), flow("2022-06-30", "-300"), flow("2023-02-01", "120")}

	first := XIRR(flows, domain.FrameTrade, d("3100.55"), "2024-05-31")
	second := XIRR(flows, domain.FrameTrade, d("3100.55"), "2024-05-31")

	assert.Equal(t, first.String(), second.String())
}
