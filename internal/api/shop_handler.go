package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/shop"
)

// ShopHandler serves the buyer-facing flows: purchase, payment check, balance.
type ShopHandler struct {
	Logger *zap.Logger
	Shop   ShopService
}

func NewShopHandler(logger *zap.Logger, svc ShopService) *ShopHandler {
	return &ShopHandler{Logger: logger, Shop: svc}
}

// CreateOrder handles POST /api/v1/orders.
func (h *ShopHandler) CreateOrder(c *fiber.Ctx) error {
	var req PurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.UserID <= 0 || req.ProductID <= 0 || req.Currency == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id, product_id, and currency are required",
		})
	}

	res, err := h.Shop.Purchase(c.Context(), req.UserID, req.ProductID, req.Currency)
	if err != nil {
		switch {
		case errors.Is(err, shop.ErrProductNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, shop.ErrCurrencyNotAllowed):
			// not payable for this product, same class as a rejected invoice
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		}
		h.Logger.Error("api.create_order_failed",
			zap.Int64("product_id", req.ProductID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if !res.OK {
		// the provider rejected the invoice; the order stays pending
		return c.Status(fiber.StatusUnprocessableEntity).JSON(res)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// CheckInvoice handles POST /api/v1/invoices/:id/check.
func (h *ShopHandler) CheckInvoice(c *fiber.Ctx) error {
	invoiceID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || invoiceID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid invoice id"})
	}

	res, err := h.Shop.CheckPayment(c.Context(), invoiceID)
	if err != nil {
		switch {
		case errors.Is(err, shop.ErrOrderNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, shop.ErrMalformedPayload):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
		h.Logger.Error("api.check_invoice_failed",
			zap.Int64("invoice_id", invoiceID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

// GetBalance handles GET /api/v1/balance.
func (h *ShopHandler) GetBalance(c *fiber.Ctx) error {
	balances, err := h.Shop.Balance(c.Context())
	if err != nil {
		h.Logger.Error("api.get_balance_failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(balances)
}
