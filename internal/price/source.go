package price

import (
	"context"
	"fmt"
	"net/http"

	"crypto-portfolio-monitor/internal/types"
)

// Limiter is satisfied by *ratelimit.Limiter.
type Limiter interface {
	WaitIfNeeded(ctx context.Context) error
}

// Source is an external price provider.
type Source interface {
	// SimplePrice returns the current USD price for each requested coin it knows about.
	SimplePrice(ctx context.Context, ids []string) (map[string]float64, error)
	// MarketChart returns the USD price series of a coin over the last days.
	MarketChart(ctx context.Context, id string, days int) ([]types.PricePoint, error)
}

// APIError is returned when the provider answers with a non-200 status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config selects and configures a Source.
type Config struct {
	Provider   string // "coingecko" or "coinpaprika"
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewSource builds the provider selected by cfg. Every outbound request waits on limiter.
func NewSource(cfg Config, limiter Limiter) (Source, error) {
	switch cfg.Provider {
	case "", ProviderCoinGecko:
		return NewCoinGecko(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient, limiter), nil
	case ProviderCoinPaprika:
		return NewCoinPaprika(cfg.APIKey, cfg.HTTPClient, limiter), nil
	default:
		return nil, types.NewError(types.KindConfig, "price source", fmt.Errorf("unknown provider %q", cfg.Provider))
	}
}
