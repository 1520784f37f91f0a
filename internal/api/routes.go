package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whalepay/storefront/internal/store"
)

func RegisterRoutes(app *fiber.App, nc *nats.Conn, st store.Store,
	shopHandler *ShopHandler,
	productsHandler *ProductsHandler,
	ratesHandler *RatesHandler,
	supportHandler *SupportHandler,
) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"nats":  "ok",
			"store": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		if nc == nil || !nc.IsConnected() {
			checks["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		} else if err := nc.FlushTimeout(1 * time.Second); err != nil {
			checks["nats"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	// API routes
	v1 := app.Group("/api/v1")

	v1.Get("/products", productsHandler.ListProducts)
	v1.Get("/products/:id", productsHandler.GetProduct)
	v1.Post("/products", productsHandler.AddProduct)
	v1.Put("/products/:id", productsHandler.UpdateProduct)
	v1.Delete("/products/:id", productsHandler.DeleteProduct)

	v1.Post("/orders", shopHandler.CreateOrder)
	v1.Post("/invoices/:id/check", shopHandler.CheckInvoice)
	v1.Get("/balance", shopHandler.GetBalance)

	v1.Get("/rates", ratesHandler.GetRates)
	v1.Post("/rates/refresh", ratesHandler.RefreshRates)

	v1.Post("/support", supportHandler.CreateTicket)
	v1.Post("/support/:id/close", supportHandler.CloseTicket)
}
