package pricefeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/httpclient"
	"github.com/whalepay/storefront/internal/metrics"
	"github.com/whalepay/storefront/internal/rate"
)

// Client fetches fiat→USD exchange rates and per-asset USD prices from two
// independent external endpoints.
type Client struct {
	logger         *zap.Logger
	exec           *httpclient.Executor
	fiatRateURL    string
	cryptoPriceURL string
}

// NewClient constructs a price feed client. httpClient should carry a bounded
// timeout; both feeds are public endpoints with no authentication.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, httpClient *http.Client, retryMax int, fiatRateURL, cryptoPriceURL string) *Client {
	exec := httpclient.New(logger, rateMgr, httpClient, retryMax, "pricefeed", nil)
	return &Client{
		logger:         logger,
		exec:           exec,
		fiatRateURL:    fiatRateURL,
		cryptoPriceURL: cryptoPriceURL,
	}
}

// USDRate returns how many USD one unit of the configured fiat currency buys.
// GET <fiatRateURL> → {"rates":{"USD": x}}
func (c *Client) USDRate(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fiatRateURL, nil)
	if err != nil {
		return 0, err
	}

	var resp fiatRateResponse
	if err := c.exec.DoJSON(ctx, req, "pricefeed:fiat", &resp); err != nil {
		metrics.IncFeedRefresh("fiat", "error")
		return 0, err
	}

	usd, ok := resp.Rates["USD"]
	if !ok || usd <= 0 {
		metrics.IncFeedRefresh("fiat", "error")
		return 0, fmt.Errorf("fiat rate feed returned no positive USD rate")
	}

	metrics.IncFeedRefresh("fiat", "ok")
	return usd, nil
}

// USDPrices returns USD prices for the given asset tickers.
// GET <cryptoPriceURL>?ids=a,b&vs_currencies=usd → {"<id>":{"usd": x}}
// Assets missing from the response are simply absent from the result map;
// the caller decides what to fall back to.
func (c *Client) USDPrices(ctx context.Context, assets []string) (map[string]float64, error) {
	ids := make([]string, 0, len(assets))
	seen := make(map[string]bool, len(assets))
	for _, a := range assets {
		id := FeedID(a)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	u := fmt.Sprintf("%s?ids=%s&vs_currencies=usd", c.cryptoPriceURL, url.QueryEscape(strings.Join(ids, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var resp map[string]map[string]float64
	if err := c.exec.DoJSON(ctx, req, "pricefeed:crypto", &resp); err != nil {
		metrics.IncFeedRefresh("crypto", "error")
		return nil, err
	}

	prices := make(map[string]float64, len(assets))
	for _, a := range assets {
		if entry, ok := resp[FeedID(a)]; ok {
			if usd, ok := entry["usd"]; ok && usd > 0 {
				prices[a] = usd
				continue
			}
		}
		c.logger.Warn("pricefeed.asset_missing",
			zap.String("asset", a),
			zap.String("feed_id", FeedID(a)))
	}

	metrics.IncFeedRefresh("crypto", "ok")
	return prices, nil
}
