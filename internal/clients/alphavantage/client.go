// Package alphavantage provides a client for the Alpha Vantage daily price
// and FX series.
package alphavantage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aristath/valuator/internal/clientdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Config holds client limits. Zero fields take the DefaultConfig value.
type Config struct {
	BaseURL           string
	RequestsPerMinute int
	DailyLimit        int
	Timeout           time.Duration
}

// DefaultConfig returns the limits of the free Alpha Vantage tier
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://www.alphavantage.co/query",
		RequestsPerMinute: 5,
		DailyLimit:        25,
		Timeout:           30 * time.Second,
	}
}

// ClientInterface is the subset of the client the price and FX services use
type ClientInterface interface {
	DailySeries(ctx context.Context, symbol string) ([]DailyBar, error)
	FxSeries(ctx context.Context, from, to string) ([]FxBar, error)
}

// Client for the Alpha Vantage API
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   *clientdata.Repository
	log     zerolog.Logger

	mu         sync.Mutex
	dailyLimit int
	dailyUsed  int
	resetAt    time.Time
}

// NewClient creates a new Alpha Vantage client.
// cache is optional - if nil, responses are not cached.
func NewClient(apiKey string, cfg Config, cache *clientdata.Repository, log zerolog.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = defaults.DailyLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    cfg.BaseURL,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		cache:      cache,
		log:        log.With().Str("client", "alphavantage").Logger(),
		dailyLimit: cfg.DailyLimit,
		resetAt:    nextMidnightUTC(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alphavantage",
		MaxRequests: 1,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// Unknown symbols and cancelled callers say nothing about provider health
		IsSuccessful: func(err error) bool {
			var notFound ErrSymbolNotFound
			return err == nil || errors.As(err, &notFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
	return c
}

// DailyBar is one trading day of an adjusted daily series
type DailyBar struct {
	Date             string          `json:"date"`
	Open             decimal.Decimal `json:"open"`
	High             decimal.Decimal `json:"high"`
	Low              decimal.Decimal `json:"low"`
	Close            decimal.Decimal `json:"close"`
	AdjustedClose    decimal.Decimal `json:"adjustedClose"`
	Volume           int64           `json:"volume"`
	Dividend         decimal.Decimal `json:"dividend"`
	SplitCoefficient decimal.Decimal `json:"splitCoefficient"`
}

// FxBar is one day of an FX series
type FxBar struct {
	Date  string          `json:"date"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// DailySeries returns the full adjusted daily series for symbol, oldest
// first. Fresh cached series are served without a request; when the request
// fails a stale cached series is returned instead.
func (c *Client) DailySeries(ctx context.Context, symbol string) ([]DailyBar, error) {
	var bars []DailyBar
	if c.load(clientdata.TableAlphaVantageDaily, symbol, &bars, false) {
		return bars, nil
	}

	body, err := c.fetch(ctx, url.Values{
		"function":   {"TIME_SERIES_DAILY_ADJUSTED"},
		"symbol":     {symbol},
		"outputsize": {"full"},
	})
	if err == nil {
		bars, err = parseDailySeries(body)
	}
	if err != nil {
		var notFound ErrSymbolNotFound
		if errors.As(err, &notFound) {
			notFound.Symbol = symbol
			return nil, notFound
		}
		if c.load(clientdata.TableAlphaVantageDaily, symbol, &bars, true) {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("API failed, using stale cached series")
			return bars, nil
		}
		return nil, err
	}

	c.store(clientdata.TableAlphaVantageDaily, symbol, bars, clientdata.TTLDailySeries)
	c.log.Info().Str("symbol", symbol).Int("bars", len(bars)).Msg("Fetched daily series")
	return bars, nil
}

// FxSeries returns the full daily series of from:to, oldest first, with the
// same cache behaviour as DailySeries
func (c *Client) FxSeries(ctx context.Context, from, to string) ([]FxBar, error) {
	key := from + ":" + to
	var bars []FxBar
	if c.load(clientdata.TableAlphaVantageFx, key, &bars, false) {
		return bars, nil
	}

	body, err := c.fetch(ctx, url.Values{
		"function":    {"FX_DAILY"},
		"from_symbol": {from},
		"to_symbol":   {to},
		"outputsize":  {"full"},
	})
	if err == nil {
		bars, err = parseFxSeries(body)
	}
	if err != nil {
		var notFound ErrSymbolNotFound
		if errors.As(err, &notFound) {
			notFound.Symbol = key
			return nil, notFound
		}
		if c.load(clientdata.TableAlphaVantageFx, key, &bars, true) {
			c.log.Warn().Err(err).Str("pair", key).Msg("API failed, using stale cached fx series")
			return bars, nil
		}
		return nil, err
	}

	c.store(clientdata.TableAlphaVantageFx, key, bars, clientdata.TTLFxSeries)
	c.log.Info().Str("pair", key).Int("bars", len(bars)).Msg("Fetched fx series")
	return bars, nil
}

// GetRemainingRequests returns the requests left in today's quota
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollOver()
	return c.dailyLimit - c.dailyUsed
}

// ResetDailyCounter restores the full daily quota
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyUsed = 0
	c.resetAt = nextMidnightUTC()
}

// fetch performs one API call through the quota, the per-minute limiter and
// the circuit breaker
func (c *Client) fetch(ctx context.Context, params url.Values) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrInvalidAPIKey{}
	}
	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	c.log.Debug().Str("function", params.Get("function")).Msg("Calling API")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if err := c.checkAPIError(body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkRateLimit consumes one request from the daily quota
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollOver()
	if c.dailyUsed >= c.dailyLimit {
		return ErrRateLimitExceeded{}
	}
	c.dailyUsed++
	return nil
}

// rollOver resets the quota after midnight UTC. Callers hold mu.
func (c *Client) rollOver() {
	if time.Now().After(c.resetAt) {
		c.dailyUsed = 0
		c.resetAt = nextMidnightUTC()
	}
}

// checkAPIError detects the error documents Alpha Vantage returns with a 200
func (c *Client) checkAPIError(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if bytes.Contains(trimmed, []byte("Thank you for using Alpha Vantage")) {
		return ErrRateLimitExceeded{}
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("unexpected response: %.80s", trimmed)
	}

	var doc struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	switch {
	case doc.Note != "":
		return ErrRateLimitExceeded{}
	case doc.Information != "":
		if bytes.Contains(bytes.ToLower([]byte(doc.Information)), []byte("api key")) {
			return ErrInvalidAPIKey{}
		}
		return ErrRateLimitExceeded{}
	case doc.ErrorMessage != "":
		return ErrSymbolNotFound{Message: doc.ErrorMessage}
	}
	return nil
}

func (c *Client) load(table, key string, v interface{}, allowStale bool) bool {
	if c.cache == nil {
		return false
	}
	ok, err := c.cache.Load(table, key, v, allowStale)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to read cache")
		return false
	}
	return ok
}

func (c *Client) store(table, key string, v interface{}, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Store(table, key, v, ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
	}
}

func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

func parseDailySeries(body []byte) ([]DailyBar, error) {
	var doc struct {
		Series map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse daily series: %w", err)
	}
	if doc.Series == nil {
		return nil, ErrSymbolNotFound{Message: "no daily series in response"}
	}

	bars := make([]DailyBar, 0, len(doc.Series))
	for date, fields := range doc.Series {
		bar := DailyBar{Date: date}
		err := parseFields(fields, map[string]*decimal.Decimal{
			"1. open":              &bar.Open,
			"2. high":              &bar.High,
			"3. low":               &bar.Low,
			"4. close":             &bar.Close,
			"5. adjusted close":    &bar.AdjustedClose,
			"7. dividend amount":   &bar.Dividend,
			"8. split coefficient": &bar.SplitCoefficient,
		})
		if err != nil {
			return nil, fmt.Errorf("daily series %s: %w", date, err)
		}
		if v, ok := fields["6. volume"]; ok {
			bar.Volume, _ = strconv.ParseInt(v, 10, 64)
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

func parseFxSeries(body []byte) ([]FxBar, error) {
	var doc struct {
		Series map[string]map[string]string `json:"Time Series FX (Daily)"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse fx series: %w", err)
	}
	if doc.Series == nil {
		return nil, ErrSymbolNotFound{Message: "no fx series in response"}
	}

	bars := make([]FxBar, 0, len(doc.Series))
	for date, fields := range doc.Series {
		bar := FxBar{Date: date}
		err := parseFields(fields, map[string]*decimal.Decimal{
			"1. open":  &bar.Open,
			"2. high":  &bar.High,
			"3. low":   &bar.Low,
			"4. close": &bar.Close,
		})
		if err != nil {
			return nil, fmt.Errorf("fx series %s: %w", date, err)
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

// parseFields parses the named fields that are present; missing ones stay zero
func parseFields(fields map[string]string, targets map[string]*decimal.Decimal) error {
	for name, dst := range targets {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		*dst = v
	}
	return nil
}
