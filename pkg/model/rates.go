package model

import "time"

// RateSnapshot is the cached pair of fiat→USD rate and per-asset USD prices
// used for all amount conversions until the next refresh.
type RateSnapshot struct {
	FiatUSD     float64            `json:"fiat_usd"`     // USD per one fiat unit
	AssetUSD    map[string]float64 `json:"asset_usd"`    // asset ticker → USD price
	FiatFresh   bool               `json:"fiat_fresh"`   // fiat half fetched successfully at least once
	AssetsFresh bool               `json:"assets_fresh"` // asset half fetched successfully at least once
	FetchedAt   time.Time          `json:"fetched_at"`
}

// Clone returns a deep copy so callers can never mutate the cached map.
func (s RateSnapshot) Clone() RateSnapshot {
	out := s
	out.AssetUSD = make(map[string]float64, len(s.AssetUSD))
	for k, v := range s.AssetUSD {
		out.AssetUSD[k] = v
	}
	return out
}
