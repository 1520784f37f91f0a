package pricefeed

import "strings"

// feedIDs maps asset tickers to the identifiers the crypto price feed uses.
// Tickers absent from this table fall back to the lowercased ticker.
var feedIDs = map[string]string{
	"TON":     "the-open-network",
	"TONCOIN": "the-open-network", // testnet alias for TON
	"BTC":     "bitcoin",
	"ETH":     "ethereum",
	"USDT":    "tether",
	"USDC":    "usd-coin",
	"BUSD":    "binance-usd",
}

// FeedID returns the price feed identifier for an asset ticker.
func FeedID(asset string) string {
	if id, ok := feedIDs[asset]; ok {
		return id
	}
	return strings.ToLower(asset)
}

// fiatRateResponse is the shape of the fiat exchange rate endpoint:
// {"rates": {"USD": 0.0105, ...}}
type fiatRateResponse struct {
	Rates map[string]float64 `json:"rates"`
}
