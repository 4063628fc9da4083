// Package performance provides the performance snapshot cache, its
// invalidation listeners and the performance series built on top of it.
package performance

import (
	"context"

	"github.com/aristath/valuator/internal/domain"
)

// Cache stores one snapshot per portfolio and valuation date. A cell is
// either absent or valid; invalidation deletes it.
//
// Every invalidation touching a portfolio advances its generation. Writers
// that computed snapshots from data read earlier pass the generation they
// saw to StoreSnapshotsIfCurrent, so an invalidation landing mid-computation
// is never overwritten with figures from before the change.
type Cache interface {
	// Generation returns the portfolio's current invalidation generation
	Generation(portfolioID string) uint64
	// FindSnapshots returns the cached snapshots among dates, ordered by date.
	// Dates without a snapshot are simply absent.
	FindSnapshots(ctx context.Context, portfolioID string, dates []string) ([]domain.CachedSnapshot, error)
	// StoreSnapshots replaces the snapshots for their dates
	StoreSnapshots(ctx context.Context, portfolioID string, snapshots []domain.CachedSnapshot) error
	// StoreSnapshotsIfCurrent stores like StoreSnapshots unless the
	// portfolio's generation has moved past generation. It reports whether
	// the snapshots were written.
	StoreSnapshotsIfCurrent(ctx context.Context, portfolioID string, generation uint64, snapshots []domain.CachedSnapshot) (bool, error)
	// InvalidateFrom removes a portfolio's snapshots on or after fromDate
	InvalidateFrom(ctx context.Context, portfolioID, fromDate string) error
	// InvalidateOnDate removes every portfolio's snapshot on date
	InvalidateOnDate(ctx context.Context, date string) error
	// InvalidatePortfolio removes all of a portfolio's snapshots
	InvalidatePortfolio(ctx context.Context, portfolioID string) error
}

// NoopCache finds nothing and accepts everything
type NoopCache struct{}

// NewNoopCache creates a cache that never holds anything
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (NoopCache) FindSnapshots(context.Context, string, []string) ([]domain.CachedSnapshot, error) {
	return nil, nil
}

func (NoopCache) Generation(string) uint64 {
	return 0
}

func (NoopCache) StoreSnapshots(context.Context, string, []domain.CachedSnapshot) error {
	return nil
}

func (NoopCache) StoreSnapshotsIfCurrent(context.Context, string, uint64, []domain.CachedSnapshot) (bool, error) {
	return true, nil
}

func (NoopCache) InvalidateFrom(context.Context, string, string) error {
	return nil
}

func (NoopCache) InvalidateOnDate(context.Context, string) error {
	return nil
}

func (NoopCache) InvalidatePortfolio(context.Context, string) error {
	return nil
}

var (
	_ Cache = (*NoopCache)(nil)
	_ Cache = (*SQLiteCache)(nil)
)
