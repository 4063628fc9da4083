package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	business := NewBusinessError("fx rates unavailable for %s", "2024-01-01")
	invalid := InvalidInput("bad date")
	notFound := NewNotFoundError("snapshot", "P1/2024-01-01")
	transient := &TransientError{Op: "fetch fx", Err: errors.New("deadline exceeded")}

	wrapped := fmt.Errorf("failed to value: %w", business)

	assert.True(t, IsBusiness(wrapped))
	assert.False(t, IsInvalidInput(wrapped))
	assert.True(t, IsInvalidInput(invalid))
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", notFound)))
	assert.False(t, IsBusiness(notFound))
	assert.True(t, IsTransient(transient))
	assert.Equal(t, "fetch fx: deadline exceeded", transient.Error())
	assert.Equal(t, "snapshot not found: P1/2024-01-01", notFound.Error())
}

func TestCacheErrorUnwraps(t *testing.T) {
	inner := errors.New("disk full")
	err := &CacheError{Op: "store", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "cache store: disk full", err.Error())
}

func TestResolveDate(t *testing.T) {
	now := time.Date(2024, 3, 15, 22, 0, 0, 0, time.UTC)

	got, err := ResolveDate("today", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", got)

	got, err = ResolveDate("", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", got)

	got, err = ResolveDate("2023-12-31", now)
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", got)

	_, err = ResolveDate("31/12/2023", now)
	assert.True(t, IsInvalidInput(err))
}

func TestDateRange(t *testing.T) {
	dates, err := DateRange("2024-02-27", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}, dates)

	_, err = DateRange("2024-03-01", "2024-02-01")
	assert.Error(t, err)
}

func TestParseTrnType(t *testing.T) {
	got, err := ParseTrnType(" divi ")
	require.NoError(t, err)
	assert.Equal(t, TrnDividend, got)

	_, err = ParseTrnType("BOGUS")
	assert.True(t, IsInvalidInput(err))

	assert.True(t, TrnDeposit.IsCashMovement())
	assert.True(t, TrnFxBuy.IsCashMovement())
	assert.False(t, TrnBuy.IsCashMovement())
}
