package rates

import (
	"sync"
	"time"

	"github.com/whalepay/storefront/pkg/model"
)

// Defaults returns the boot-time snapshot used before the first successful
// refresh, so the service stays operable in a disconnected environment.
// Values are deliberately coarse: 1 fiat unit ≈ 0.01 USD and representative
// per-asset USD prices.
func Defaults() model.RateSnapshot {
	return model.RateSnapshot{
		FiatUSD: 0.01,
		AssetUSD: map[string]float64{
			"TON":     5.0,
			"TONCOIN": 5.0,
			"BTC":     60000.0,
			"ETH":     3000.0,
			"USDT":    1.0,
			"USDC":    1.0,
			"BUSD":    1.0,
		},
	}
}

// Cache holds the current rate snapshot. It is an explicitly owned object
// passed into the calculator and refresher; there are no package globals.
// Readers always see either the old or the new snapshot, never a torn one.
type Cache struct {
	mu   sync.RWMutex
	snap model.RateSnapshot
}

// NewCache creates a cache seeded with the given snapshot.
func NewCache(initial model.RateSnapshot) *Cache {
	return &Cache{snap: initial.Clone()}
}

// Read returns a copy of the current snapshot without fetching anything.
// This is the hot path used on every amount calculation.
func (c *Cache) Read() model.RateSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Clone()
}

// SetFiatUSD replaces the fiat half of the snapshot.
func (c *Cache) SetFiatUSD(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.FiatUSD = rate
	c.snap.FiatFresh = true
	c.snap.FetchedAt = time.Now().UTC()
}

// MergeAssetUSD folds freshly fetched prices into the asset half.
// Assets missing from prices keep their previous cached value.
func (c *Cache) MergeAssetUSD(prices map[string]float64) {
	if len(prices) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for asset, usd := range prices {
		c.snap.AssetUSD[asset] = usd
	}
	c.snap.AssetsFresh = true
	c.snap.FetchedAt = time.Now().UTC()
}

// Replace swaps in a whole snapshot, e.g. one restored from the store after
// a restart. Defaults for assets absent from the restored snapshot are kept.
func (c *Cache) Replace(snap model.RateSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := c.snap.Clone()
	merged.FiatUSD = snap.FiatUSD
	merged.FiatFresh = snap.FiatFresh
	merged.AssetsFresh = snap.AssetsFresh
	merged.FetchedAt = snap.FetchedAt
	for asset, usd := range snap.AssetUSD {
		merged.AssetUSD[asset] = usd
	}
	c.snap = merged
}
