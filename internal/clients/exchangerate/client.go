// Package exchangerate provides latest exchange rates from exchangerate-api.com
// backed by the client data cache.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/valuator/internal/clientdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the public latest-rates endpoint
const DefaultBaseURL = "https://api.exchangerate-api.com/v4/latest"

// Client for exchangerate-api.com
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new exchangerate-api.com client.
// baseURL defaults to DefaultBaseURL; cacheRepo is optional - if nil,
// caching is disabled.
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "exchangerate-api").Logger(),
		cacheRepo: cacheRepo,
	}
}

// rateTable is the structure stored in the cache: every rate quoted against
// one base currency
type rateTable struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// GetRate returns the latest from:to rate.
// If the API fails, returns stale cached data if available (stale data > no data).
func (c *Client) GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	if fromCurrency == toCurrency {
		return decimal.NewFromInt(1), nil
	}

	table, err := c.rates(ctx, fromCurrency)
	if err != nil {
		return decimal.Zero, err
	}
	rate, ok := table.Rates[toCurrency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("rate not found for %s->%s", fromCurrency, toCurrency)
	}
	return rate, nil
}

func (c *Client) rates(ctx context.Context, base string) (*rateTable, error) {
	var table rateTable
	if c.load(base, &table, false) {
		c.log.Debug().Str("base", base).Msg("Cache hit")
		return &table, nil
	}

	fetched, err := c.fetch(ctx, base)
	if err != nil {
		// API failed - try to get stale cached data as fallback
		if c.load(base, &table, true) {
			c.log.Warn().
				Err(err).
				Str("base", base).
				Str("date", table.Date).
				Msg("API failed, using stale cached rates")
			return &table, nil
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(clientdata.TableExchangeRate, base, fetched, clientdata.TTLExchangeRate); err != nil {
			c.log.Warn().Err(err).Str("base", base).Msg("Failed to cache exchange rates")
		}
	}
	c.log.Info().Str("base", base).Int("rates", len(fetched.Rates)).Msg("Fetched rates")
	return fetched, nil
}

func (c *Client) fetch(ctx context.Context, base string) (*rateTable, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, base)
	c.log.Debug().Str("url", url).Msg("Fetching rates")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var table rateTable
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(table.Rates) == 0 {
		return nil, fmt.Errorf("no rates in response for %s", base)
	}
	return &table, nil
}

func (c *Client) load(base string, table *rateTable, allowStale bool) bool {
	if c.cacheRepo == nil {
		return false
	}
	ok, err := c.cacheRepo.Load(clientdata.TableExchangeRate, base, table, allowStale)
	if err != nil {
		c.log.Warn().Err(err).Str("base", base).Msg("Failed to read cached rates")
		return false
	}
	return ok
}
