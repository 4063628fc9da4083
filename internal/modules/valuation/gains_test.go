package valuation

import (
	"testing"

	"github.com/aristath/valuator/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGains_Value(t *testing.T) {
	mv := &domain.MoneyValues{
		CostBasis:    d("1000"),
		MarketValue:  d("1200"),
		RealisedGain: d("50"),
		Dividends:    d("10"),
		AverageCost:  d("10"),
	}

	result := Gains{}.Value(d("100"), mv)

	assert.Same(t, mv, result)
	assert.Equal(t, "200", mv.UnrealisedGain.String())
	assert.Equal(t, "260", mv.TotalGain.String())
	assert.Equal(t, "10", mv.AverageCost.String())
}

func TestGains_Value_NoQuantity(t *testing.T) {
	mv := &domain.MoneyValues{
		CostBasis:    decimal.Zero,
		MarketValue:  decimal.Zero,
		RealisedGain: d("75"),
		AverageCost:  d("12"),
	}

	Gains{}.Value(decimal.Zero, mv)

	assert.True(t, mv.UnrealisedGain.IsZero())
	assert.True(t, mv.AverageCost.IsZero())
	assert.Equal(t, "75", mv.TotalGain.String())
}

func TestGains_Value_Nil(t *testing.T) {
	assert.Nil(t, Gains{}.Value(d("1"), nil))
}
