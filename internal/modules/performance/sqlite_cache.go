package performance

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aristath/valuator/internal/database"
	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SQLiteCache keeps snapshots in the performance_snapshots table of the
// cache database. Decimals are stored as TEXT.
//
// Invalidation generations are kept in memory and start at zero on open.
type SQLiteCache struct {
	db      *sql.DB
	now     func() time.Time
	metrics *metrics.Registry
	log     zerolog.Logger

	// mu orders generation bumps with the writes they guard
	mu         sync.Mutex
	global     uint64
	portfolios map[string]uint64
}

// NewSQLiteCache creates a new snapshot cache over the cache database
func NewSQLiteCache(db *sql.DB, m *metrics.Registry, log zerolog.Logger) *SQLiteCache {
	return &SQLiteCache{
		db:      db,
		now:     time.Now,
		metrics: m,
		log:     log.With().Str("repo", "performance_cache").Logger(),

		portfolios: make(map[string]uint64),
	}
}

// Generation returns the portfolio's invalidation generation. Date-wide
// invalidations count for every portfolio.
func (c *SQLiteCache) Generation(portfolioID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(portfolioID)
}

func (c *SQLiteCache) generation(portfolioID string) uint64 {
	return c.global + c.portfolios[portfolioID]
}

// FindSnapshots returns the cached snapshots among dates, ordered by date
func (c *SQLiteCache) FindSnapshots(ctx context.Context, portfolioID string, dates []string) ([]domain.CachedSnapshot, error) {
	if len(dates) == 0 {
		return nil, nil
	}

	query := `SELECT portfolio_id, valuation_date, market_value, external_cash_flow,
		net_contributions, cumulative_dividends, created_at
		FROM performance_snapshots
		WHERE portfolio_id = ? AND valuation_date IN (` + placeholders(len(dates)) + `)
		ORDER BY valuation_date`

	args := make([]interface{}, 0, len(dates)+1)
	args = append(args, portfolioID)
	for _, d := range dates {
		args = append(args, d)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.fail("find", fmt.Errorf("failed to query snapshots: %w", err))
	}
	defer rows.Close()

	var snapshots []domain.CachedSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, c.fail("find", fmt.Errorf("failed to scan snapshot: %w", err))
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, c.fail("find", fmt.Errorf("error iterating snapshots: %w", err))
	}

	c.metrics.CacheLookup(len(snapshots), len(dates)-len(snapshots))
	return snapshots, nil
}

// StoreSnapshots deletes the target dates and inserts the new rows in one
// transaction. Storing the same snapshots twice leaves one row per date.
func (c *SQLiteCache) StoreSnapshots(ctx context.Context, portfolioID string, snapshots []domain.CachedSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(ctx, portfolioID, snapshots)
}

// StoreSnapshotsIfCurrent stores snapshots only while no invalidation has
// touched the portfolio since generation was read
func (c *SQLiteCache) StoreSnapshotsIfCurrent(ctx context.Context, portfolioID string, generation uint64, snapshots []domain.CachedSnapshot) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current := c.generation(portfolioID); current != generation {
		c.log.Debug().
			Str("portfolio", portfolioID).
			Uint64("computed_at", generation).
			Uint64("current", current).
			Msg("Snapshots invalidated while computing, not storing")
		return false, nil
	}
	if err := c.store(ctx, portfolioID, snapshots); err != nil {
		return false, err
	}
	return true, nil
}

func (c *SQLiteCache) store(ctx context.Context, portfolioID string, snapshots []domain.CachedSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	createdAt := c.now().Unix()

	err := database.WithTransaction(ctx, c.db, func(tx *sql.Tx) error {
		del, err := tx.PrepareContext(ctx,
			`DELETE FROM performance_snapshots WHERE portfolio_id = ? AND valuation_date = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare delete: %w", err)
		}
		defer del.Close()

		ins, err := tx.PrepareContext(ctx, `INSERT INTO performance_snapshots
			(portfolio_id, valuation_date, market_value, external_cash_flow,
			 net_contributions, cumulative_dividends, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer ins.Close()

		for _, s := range snapshots {
			if _, err := del.ExecContext(ctx, portfolioID, s.ValuationDate); err != nil {
				return fmt.Errorf("failed to delete snapshot %s: %w", s.ValuationDate, err)
			}
			if _, err := ins.ExecContext(ctx,
				portfolioID,
				s.ValuationDate,
				s.MarketValue.String(),
				s.ExternalCashFlow.String(),
				s.NetContributions.String(),
				s.CumulativeDividends.String(),
				createdAt,
			); err != nil {
				return fmt.Errorf("failed to insert snapshot %s: %w", s.ValuationDate, err)
			}
		}
		return nil
	})
	if err != nil {
		return c.fail("store", err)
	}

	c.log.Debug().
		Str("portfolio", portfolioID).
		Int("snapshots", len(snapshots)).
		Msg("Stored performance snapshots")
	return nil
}

// InvalidateFrom removes a portfolio's snapshots on or after fromDate
func (c *SQLiteCache) InvalidateFrom(ctx context.Context, portfolioID, fromDate string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.portfolios[portfolioID]++
	return c.delete(ctx, "invalidate_from",
		`DELETE FROM performance_snapshots WHERE portfolio_id = ? AND valuation_date >= ?`,
		portfolioID, fromDate)
}

// InvalidateOnDate removes every portfolio's snapshot on date
func (c *SQLiteCache) InvalidateOnDate(ctx context.Context, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global++
	return c.delete(ctx, "invalidate_on_date",
		`DELETE FROM performance_snapshots WHERE valuation_date = ?`,
		date)
}

// InvalidatePortfolio removes all of a portfolio's snapshots
func (c *SQLiteCache) InvalidatePortfolio(ctx context.Context, portfolioID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.portfolios[portfolioID]++
	return c.delete(ctx, "invalidate_portfolio",
		`DELETE FROM performance_snapshots WHERE portfolio_id = ?`,
		portfolioID)
}

func (c *SQLiteCache) delete(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return c.fail(op, fmt.Errorf("failed to delete snapshots: %w", err))
	}
	removed, _ := result.RowsAffected()
	c.log.Debug().
		Str("operation", op).
		Interface("args", args).
		Int64("removed", removed).
		Msg("Invalidated performance snapshots")
	return nil
}

func (c *SQLiteCache) fail(op string, err error) error {
	c.metrics.CacheError(op)
	return &domain.CacheError{Op: op, Err: err}
}

func scanSnapshot(rows *sql.Rows) (domain.CachedSnapshot, error) {
	var s domain.CachedSnapshot
	var marketValue, externalCashFlow, netContributions, dividends string

	if err := rows.Scan(
		&s.PortfolioID,
		&s.ValuationDate,
		&marketValue,
		&externalCashFlow,
		&netContributions,
		&dividends,
		&s.CreatedAt,
	); err != nil {
		return s, err
	}

	var err error
	if s.MarketValue, err = decimal.NewFromString(marketValue); err != nil {
		return s, fmt.Errorf("market_value: %w", err)
	}
	if s.ExternalCashFlow, err = decimal.NewFromString(externalCashFlow); err != nil {
		return s, fmt.Errorf("external_cash_flow: %w", err)
	}
	if s.NetContributions, err = decimal.NewFromString(netContributions); err != nil {
		return s, fmt.Errorf("net_contributions: %w", err)
	}
	if s.CumulativeDividends, err = decimal.NewFromString(dividends); err != nil {
		return s, fmt.Errorf("cumulative_dividends: %w", err)
	}
	return s, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
