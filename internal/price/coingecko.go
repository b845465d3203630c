package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"crypto-portfolio-monitor/internal/types"
)

const (
	ProviderCoinGecko     = "coingecko"
	DefaultCoinGeckoURL   = "https://api.coingecko.com/api/v3"
	coinGeckoAPIKeyHeader = "x-cg-demo-api-key"
	maxErrorBodyBytes     = 512
	defaultRequestTimeout = 30 * time.Second
)

// CoinGecko queries the public CoinGecko v3 API.
type CoinGecko struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter Limiter
}

func NewCoinGecko(baseURL, apiKey string, client *http.Client, limiter Limiter) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		limiter: limiter,
	}
}

// SimplePrice calls /simple/price for ids. Coins missing from the answer are left out of
// the map rather than reported as errors.
func (c *CoinGecko) SimplePrice(ctx context.Context, ids []string) (map[string]float64, error) {
	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")

	var payload map[string]map[string]float64
	if err := c.get(ctx, "/simple/price", params, &payload); err != nil {
		return nil, errors.Wrapf(err, "simple price for %s", strings.Join(ids, ","))
	}

	prices := make(map[string]float64, len(payload))
	for _, id := range ids {
		if p, ok := payload[id]["usd"]; ok && p > 0 {
			prices[id] = p
		}
	}
	return prices, nil
}

// MarketChart calls /coins/{id}/market_chart. The provider encodes points as
// [unix_millis, price] pairs.
func (c *CoinGecko) MarketChart(ctx context.Context, id string, days int) ([]types.PricePoint, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", strconv.Itoa(days))

	var payload struct {
		Prices [][2]float64 `json:"prices"`
	}
	path := fmt.Sprintf("/coins/%s/market_chart", url.PathEscape(id))
	if err := c.get(ctx, path, params, &payload); err != nil {
		return nil, errors.Wrapf(err, "market chart for %s", id)
	}

	points := make([]types.PricePoint, 0, len(payload.Prices))
	for _, p := range payload.Prices {
		points = append(points, types.PricePoint{
			Timestamp: time.UnixMilli(int64(p[0])).UTC(),
			Price:     p[1],
		})
	}
	return points, nil
}

func (c *CoinGecko) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.WaitIfNeeded(ctx); err != nil {
			return err
		}
	}

	endpoint := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(coinGeckoAPIKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewError(types.KindTransient, "coingecko "+path, err)
	}
	defer resp.Body.Close()

	log.WithFields(log.Fields{
		"component": "coingecko",
		"path":      path,
		"status":    resp.StatusCode,
		"duration":  time.Since(start),
	}).Debug("request complete")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return types.NewError(types.KindTransient, "coingecko "+path, &APIError{
			Provider:   ProviderCoinGecko,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.KindTransient, "coingecko "+path, errors.Wrap(err, "decode response"))
	}
	if log.IsLevelEnabled(log.TraceLevel) {
		log.WithField("component", "coingecko").Trace(spew.Sdump(out))
	}
	return nil
}
