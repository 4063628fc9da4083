// Package clientdata caches provider responses in client_data.db.
// Entries carry an expiry; expired entries stay readable as a fallback for a
// retention window so a failing provider can still be answered from disk.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Table names in client_data.db
const (
	TableAlphaVantageDaily = "alphavantage_daily"
	TableAlphaVantageFx    = "alphavantage_fx"
	TableExchangeRate      = "exchangerate"
	TablePrices            = "prices"
)

// AllTables lists every cache table, in cleanup order.
var AllTables = []string{
	TableAlphaVantageDaily,
	TableAlphaVantageFx,
	TableExchangeRate,
	TablePrices,
}

type tableSpec struct {
	keyColumn string
	// retention is how long an expired row is kept as a stale fallback
	retention time.Duration
}

var tables = map[string]tableSpec{
	TableAlphaVantageDaily: {keyColumn: "symbol", retention: StaleRetention},
	TableAlphaVantageFx:    {keyColumn: "pair", retention: StaleRetention},
	TableExchangeRate:      {keyColumn: "pair", retention: StaleRetention},
	TablePrices:            {keyColumn: "price_key", retention: StaleRetention},
}

// Repository reads and writes cached provider payloads.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// spec returns the table layout, rejecting anything outside AllTables since
// table names are interpolated into SQL.
func spec(table string) (tableSpec, error) {
	s, ok := tables[table]
	if !ok {
		return tableSpec{}, fmt.Errorf("invalid table name: %s", table)
	}
	return s, nil
}

func getKeyColumn(table string) string {
	return tables[table].keyColumn
}

// Store upserts data as JSON, expiring ttl from now. A negative ttl writes an
// already expired entry.
func (r *Repository) Store(table, key string, data interface{}, ttl time.Duration) error {
	s, err := spec(table)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s entry %s: %w", table, key, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(%s) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`, table, s.keyColumn, s.keyColumn)
	if _, err := r.db.Exec(query, key, string(payload), r.now().Add(ttl).Unix()); err != nil {
		return fmt.Errorf("failed to store %s entry %s: %w", table, key, err)
	}
	return nil
}

// GetIfFresh returns the entry only while it has not expired.
// A missing or expired entry is nil, nil.
func (r *Repository) GetIfFresh(table, key string) (json.RawMessage, error) {
	return r.lookup(table, key, true)
}

// Get returns the entry whatever its expiry. Callers use it once the
// provider has failed. A missing entry is nil, nil.
func (r *Repository) Get(table, key string) (json.RawMessage, error) {
	return r.lookup(table, key, false)
}

func (r *Repository) lookup(table, key string, freshOnly bool) (json.RawMessage, error) {
	s, err := spec(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT data, expires_at FROM %s WHERE %s = ?", table, s.keyColumn)
	var (
		data      string
		expiresAt int64
	)
	err = r.db.QueryRow(query, key).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s entry %s: %w", table, key, err)
	}
	if freshOnly && expiresAt <= r.now().Unix() {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// Load decodes the entry for key into v and reports whether v was filled.
// Expired entries count only when allowStale is set.
func (r *Repository) Load(table, key string, v interface{}, allowStale bool) (bool, error) {
	data, err := r.lookup(table, key, !allowStale)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s entry %s: %w", table, key, err)
	}
	return true, nil
}

// Delete removes one entry. Deleting a missing key is not an error.
func (r *Repository) Delete(table, key string) error {
	s, err := spec(table)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, s.keyColumn)
	if _, err := r.db.Exec(query, key); err != nil {
		return fmt.Errorf("failed to delete %s entry %s: %w", table, key, err)
	}
	return nil
}

// DeleteExpired removes entries that expired longer ago than the table's
// retention window and returns how many went.
func (r *Repository) DeleteExpired(table string) (int64, error) {
	s, err := spec(table)
	if err != nil {
		return 0, err
	}

	cutoff := r.now().Add(-s.retention).Unix()
	result, err := r.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
	}
	return result.RowsAffected()
}

// DeleteAllExpired runs DeleteExpired over AllTables. On error the counts of
// the tables already cleaned are still returned.
func (r *Repository) DeleteAllExpired() (map[string]int64, error) {
	results := make(map[string]int64, len(AllTables))
	for _, table := range AllTables {
		deleted, err := r.DeleteExpired(table)
		if err != nil {
			return results, err
		}
		results[table] = deleted
	}
	return results, nil
}
