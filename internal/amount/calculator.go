package amount

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/rates"
)

// AssetSpec describes how amounts in one asset are constrained and rounded.
type AssetSpec struct {
	Minimum   decimal.Decimal // smallest payable amount the provider accepts
	Precision int32           // decimal places to round to
}

// DefaultSpecs returns the built-in asset table. Callers may extend or
// override entries for new assets via Calculator options; nothing in the
// calculator assumes these exact tickers.
func DefaultSpecs() map[string]AssetSpec {
	return map[string]AssetSpec{
		"TON":     {Minimum: decimal.RequireFromString("0.01"), Precision: 6},
		"TONCOIN": {Minimum: decimal.RequireFromString("0.01"), Precision: 6},
		"BTC":     {Minimum: decimal.RequireFromString("0.00001"), Precision: 8},
		"ETH":     {Minimum: decimal.RequireFromString("0.001"), Precision: 6},
		"USDT":    {Minimum: decimal.NewFromInt(1), Precision: 2},
		"USDC":    {Minimum: decimal.NewFromInt(1), Precision: 2},
		"BUSD":    {Minimum: decimal.NewFromInt(1), Precision: 2},
	}
}

// stablecoinSpec is the fallback for assets with no configured spec.
var stablecoinSpec = AssetSpec{Minimum: decimal.Zero, Precision: 2}

// Calculator converts fiat prices into crypto amounts using the rate cache.
type Calculator struct {
	logger *zap.Logger
	cache  *rates.Cache
	specs  map[string]AssetSpec
}

// NewCalculator builds a calculator over the given cache. overrides, if
// non-nil, replace or extend the default asset spec table.
func NewCalculator(logger *zap.Logger, cache *rates.Cache, overrides map[string]AssetSpec) *Calculator {
	specs := DefaultSpecs()
	for asset, spec := range overrides {
		specs[asset] = spec
	}
	return &Calculator{
		logger: logger,
		cache:  cache,
		specs:  specs,
	}
}

// Spec returns the effective spec for an asset.
func (c *Calculator) Spec(asset string) AssetSpec {
	if spec, ok := c.specs[asset]; ok {
		return spec
	}
	return stablecoinSpec
}

// CryptoAmount converts a fiat price into an amount of the given asset:
// priceFiat × cached fiat→USD rate ÷ cached asset USD price, clamped to the
// asset minimum and rounded to the asset precision. Assets unknown to the
// cache are priced at 1.0 USD/unit (stablecoin default).
func (c *Calculator) CryptoAmount(priceFiat decimal.Decimal, asset string) (decimal.Decimal, error) {
	if priceFiat.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("fiat price must be positive, got %s", priceFiat)
	}

	snap := c.cache.Read()

	assetUSD, ok := snap.AssetUSD[asset]
	if !ok || assetUSD <= 0 {
		c.logger.Warn("amount.unknown_asset_price",
			zap.String("asset", asset))
		assetUSD = 1.0
	}

	raw := priceFiat.
		Mul(decimal.NewFromFloat(snap.FiatUSD)).
		Div(decimal.NewFromFloat(assetUSD))

	spec := c.Spec(asset)
	if raw.LessThan(spec.Minimum) {
		c.logger.Warn("amount.below_minimum",
			zap.String("asset", asset),
			zap.String("computed", raw.String()),
			zap.String("minimum", spec.Minimum.String()))
		raw = spec.Minimum
	}

	return raw.Round(spec.Precision), nil
}
