package price

import (
	"context"
	"net/http"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"crypto-portfolio-monitor/internal/types"
)

const ProviderCoinPaprika = "coinpaprika"

// historicalLimit is the largest page the tickers history endpoint returns.
const historicalLimit = 5000

type (
	tickerFunc  func(coinID string, options *coinpaprika.TickersOptions) (*coinpaprika.Ticker, error)
	historyFunc func(coinID string, options *coinpaprika.TickersHistoricalOptions) ([]*coinpaprika.TickerHistorical, error)
)

// CoinPaprika serves prices from the CoinPaprika API through its Go client. Coin ids use
// CoinPaprika's format, e.g. "eth-ethereum".
type CoinPaprika struct {
	ticker  tickerFunc
	history historyFunc
	limiter Limiter
	now     func() time.Time
}

func NewCoinPaprika(apiProKey string, client *http.Client, limiter Limiter) *CoinPaprika {
	var paprika *coinpaprika.Client
	if apiProKey != "" {
		paprika = coinpaprika.NewClient(client, coinpaprika.WithAPIKey(apiProKey))
	} else {
		paprika = coinpaprika.NewClient(client)
	}
	return &CoinPaprika{
		ticker:  paprika.Tickers.GetByID,
		history: paprika.Tickers.GetHistoricalTickersByID,
		limiter: limiter,
		now:     time.Now,
	}
}

// SimplePrice fetches one ticker per id. A failing id is logged and left out; the call
// only fails when every id failed.
func (c *CoinPaprika) SimplePrice(ctx context.Context, ids []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(ids))
	var lastErr error
	for _, id := range ids {
		if err := c.wait(ctx); err != nil {
			return prices, err
		}
		ticker, err := c.ticker(id, &coinpaprika.TickersOptions{Quotes: "USD"})
		if err != nil {
			lastErr = types.NewError(types.KindTransient, "coinpaprika ticker "+id, err)
			log.WithField("component", "coinpaprika").WithError(err).Warnf("Failed to fetch ticker for %s", id)
			continue
		}
		if ticker == nil || ticker.Quotes == nil {
			continue
		}
		quote, ok := ticker.Quotes["USD"]
		if !ok || quote.Price == nil || *quote.Price <= 0 {
			continue
		}
		prices[id] = *quote.Price
	}
	if len(prices) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return prices, nil
}

func (c *CoinPaprika) MarketChart(ctx context.Context, id string, days int) ([]types.PricePoint, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	opts := &coinpaprika.TickersHistoricalOptions{
		Start:    c.now().Add(-time.Duration(days) * 24 * time.Hour),
		Limit:    historicalLimit,
		Quote:    "usd",
		Interval: "1h",
	}
	history, err := c.history(id, opts)
	if err != nil {
		return nil, types.NewError(types.KindTransient, "coinpaprika history "+id, errors.Wrapf(err, "historical tickers for %s", id))
	}

	points := make([]types.PricePoint, 0, len(history))
	for _, h := range history {
		if h == nil || h.Timestamp == nil || h.Price == nil {
			continue
		}
		points = append(points, types.PricePoint{Timestamp: h.Timestamp.UTC(), Price: *h.Price})
	}
	return points, nil
}

func (c *CoinPaprika) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.WaitIfNeeded(ctx)
}
