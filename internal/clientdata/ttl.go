package clientdata

import "time"

// Expiry of each kind of cached payload, added to the store time
const (
	// Daily series gain one bar per trading day
	TTLDailySeries = 12 * time.Hour
	TTLFxSeries    = 12 * time.Hour

	// Latest rates move through the day
	TTLExchangeRate = time.Hour

	// A resolved price for a past date does not change; today's does
	TTLHistoricalPrice = 7 * 24 * time.Hour
	TTLCurrentPrice    = 10 * time.Minute
)

// StaleRetention keeps expired entries around for fallback reads. It matches
// the oldest bar the price and rate lookups accept.
const StaleRetention = 7 * 24 * time.Hour
