package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/rates"
)

// RatesHandler exposes the current rate snapshot and an operator-triggered
// refresh.
type RatesHandler struct {
	Logger    *zap.Logger
	Cache     *rates.Cache
	Refresher RateRefresher
}

func NewRatesHandler(logger *zap.Logger, cache *rates.Cache, refresher RateRefresher) *RatesHandler {
	return &RatesHandler{Logger: logger, Cache: cache, Refresher: refresher}
}

// GetRates handles GET /api/v1/rates. Reads the cache, never fetches.
func (h *RatesHandler) GetRates(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.Cache.Read())
}

// RefreshRates handles POST /api/v1/rates/refresh. A failed feed half keeps
// its previous value; the response always carries the resulting snapshot.
func (h *RatesHandler) RefreshRates(c *fiber.Ctx) error {
	snap := h.Refresher.RefreshOnce(c.Context())
	return c.Status(fiber.StatusOK).JSON(snap)
}
