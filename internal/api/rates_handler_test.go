package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/rates"
	"github.com/whalepay/storefront/pkg/model"
)

type mockRefresher struct {
	cache  *rates.Cache
	called int
}

func (m *mockRefresher) RefreshOnce(context.Context) model.RateSnapshot {
	m.called++
	m.cache.SetFiatUSD(0.012)
	return m.cache.Read()
}

func newRatesApp(cache *rates.Cache, refresher RateRefresher) *fiber.App {
	app := fiber.New()
	handler := NewRatesHandler(zap.NewNop(), cache, refresher)
	v1 := app.Group("/api/v1")
	v1.Get("/rates", handler.GetRates)
	v1.Post("/rates/refresh", handler.RefreshRates)
	return app
}

func TestGetRates_ReadsCacheWithoutFetching(t *testing.T) {
	cache := rates.NewCache(model.RateSnapshot{
		FiatUSD:  0.01,
		AssetUSD: map[string]float64{"TON": 5.0},
	})
	refresher := &mockRefresher{cache: cache}
	app := newRatesApp(cache, refresher)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/rates", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var snap model.RateSnapshot
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &snap))
	assert.Equal(t, 0.01, snap.FiatUSD)
	assert.Equal(t, 0, refresher.called)
}

func TestRefreshRates_ReturnsNewSnapshot(t *testing.T) {
	cache := rates.NewCache(model.RateSnapshot{
		FiatUSD:  0.01,
		AssetUSD: map[string]float64{"TON": 5.0},
	})
	refresher := &mockRefresher{cache: cache}
	app := newRatesApp(cache, refresher)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/rates/refresh", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var snap model.RateSnapshot
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &snap))
	assert.Equal(t, 0.012, snap.FiatUSD)
	assert.Equal(t, 1, refresher.called)
}
