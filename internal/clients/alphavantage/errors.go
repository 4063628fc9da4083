package alphavantage

import "fmt"

// ErrRateLimitExceeded means the daily quota or the provider's own limit was hit
type ErrRateLimitExceeded struct{}

func (ErrRateLimitExceeded) Error() string {
	return "alphavantage: rate limit exceeded"
}

// ErrInvalidAPIKey means no key is configured or the provider rejected it
type ErrInvalidAPIKey struct{}

func (ErrInvalidAPIKey) Error() string {
	return "alphavantage: invalid or missing API key"
}

// ErrSymbolNotFound means the provider has no series for the symbol
type ErrSymbolNotFound struct {
	Symbol  string
	Message string
}

func (e ErrSymbolNotFound) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("alphavantage: symbol not found: %s (%s)", e.Symbol, e.Message)
	}
	return fmt.Sprintf("alphavantage: symbol not found: %s", e.Symbol)
}
