package rates

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/metrics"
	"github.com/whalepay/storefront/pkg/model"
)

// Feeds is the slice of the price feed client the refresher needs.
type Feeds interface {
	USDRate(ctx context.Context) (float64, error)
	USDPrices(ctx context.Context, assets []string) (map[string]float64, error)
}

// SnapshotStore mirrors the snapshot so a restart can begin warm.
type SnapshotStore interface {
	SaveRateSnapshot(ctx context.Context, snap model.RateSnapshot) error
	LoadRateSnapshot(ctx context.Context) (*model.RateSnapshot, error)
}

// Refresher keeps the rate cache up to date. Each half of the snapshot is
// fetched independently; a failed half retains its previous cached value.
// A refresh therefore never fails hard — stale beats absent.
type Refresher struct {
	logger   *zap.Logger
	feeds    Feeds
	cache    *Cache
	store    SnapshotStore // optional
	assets   []string
	interval time.Duration
}

// NewRefresher constructs a refresher for the given asset set. store may be
// nil when no mirror is wanted (tests).
func NewRefresher(logger *zap.Logger, feeds Feeds, cache *Cache, store SnapshotStore, assets []string, interval time.Duration) *Refresher {
	return &Refresher{
		logger:   logger,
		feeds:    feeds,
		cache:    cache,
		store:    store,
		assets:   assets,
		interval: interval,
	}
}

// WarmStart restores the last mirrored snapshot, if any, so amounts computed
// before the first live refresh use the most recent known rates instead of
// the compile-time defaults.
func (r *Refresher) WarmStart(ctx context.Context) {
	if r.store == nil {
		return
	}
	snap, err := r.store.LoadRateSnapshot(ctx)
	if err != nil {
		r.logger.Warn("rates.warm_start_failed", zap.Error(err))
		return
	}
	if snap == nil {
		return
	}
	r.cache.Replace(*snap)
	r.logger.Info("rates.warm_start",
		zap.Float64("fiat_usd", snap.FiatUSD),
		zap.Time("fetched_at", snap.FetchedAt))
}

// RefreshOnce fetches both snapshot halves and returns the resulting
// snapshot. Fetch failures are logged and the previous value for that half
// is kept; the error is never propagated to callers.
func (r *Refresher) RefreshOnce(ctx context.Context) model.RateSnapshot {
	if rate, err := r.feeds.USDRate(ctx); err != nil {
		r.logger.Warn("rates.fiat_refresh_failed",
			zap.Error(err),
			zap.Float64("kept_rate", r.cache.Read().FiatUSD))
	} else {
		r.cache.SetFiatUSD(rate)
	}

	if prices, err := r.feeds.USDPrices(ctx, r.assets); err != nil {
		r.logger.Warn("rates.crypto_refresh_failed", zap.Error(err))
	} else {
		r.cache.MergeAssetUSD(prices)
	}

	snap := r.cache.Read()
	if r.store != nil {
		if err := r.store.SaveRateSnapshot(ctx, snap); err != nil {
			r.logger.Warn("rates.snapshot_mirror_failed", zap.Error(err))
		}
	}
	if snap.FiatFresh || snap.AssetsFresh {
		metrics.SetLastRefresh(snap.FetchedAt)
	}

	r.logger.Info("rates.refreshed",
		zap.Float64("fiat_usd", snap.FiatUSD),
		zap.Int("assets", len(snap.AssetUSD)),
		zap.Bool("fiat_fresh", snap.FiatFresh),
		zap.Bool("assets_fresh", snap.AssetsFresh))

	return snap
}

// Start refreshes immediately, then on every tick until ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	r.WarmStart(ctx)
	r.RefreshOnce(ctx)

	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.RefreshOnce(ctx)
		case <-ctx.Done():
			r.logger.Info("rates.refresher_stopped")
			return
		}
	}
}
