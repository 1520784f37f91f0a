package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/support"
)

// SupportHandler records support requests.
type SupportHandler struct {
	Logger  *zap.Logger
	Service SupportService
}

func NewSupportHandler(logger *zap.Logger, svc SupportService) *SupportHandler {
	return &SupportHandler{Logger: logger, Service: svc}
}

// CreateTicket handles POST /api/v1/support.
func (h *SupportHandler) CreateTicket(c *fiber.Ctx) error {
	var req SupportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.UserID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}

	ticket, err := h.Service.OpenTicket(c.Context(), req.UserID, req.Message)
	if err != nil {
		if errors.Is(err, support.ErrEmptyMessage) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.Logger.Error("api.create_ticket_failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(ticket)
}

// CloseTicket handles POST /api/v1/support/:id/close.
func (h *SupportHandler) CloseTicket(c *fiber.Ctx) error {
	id := c.Params("id")

	closed, err := h.Service.CloseTicket(c.Context(), id)
	if err != nil {
		if errors.Is(err, support.ErrInvalidTicketID) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.Logger.Error("api.close_ticket_failed", zap.String("ticket_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !closed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "ticket not found or already closed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "closed"})
}
