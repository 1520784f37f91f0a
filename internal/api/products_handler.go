package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/shop"
	"github.com/whalepay/storefront/internal/store"
	"github.com/whalepay/storefront/pkg/model"
)

// ProductsHandler serves catalog browsing and the operator CRUD surface.
type ProductsHandler struct {
	Logger *zap.Logger
	Shop   ShopService
	Store  CatalogStore
}

func NewProductsHandler(logger *zap.Logger, svc ShopService, st CatalogStore) *ProductsHandler {
	return &ProductsHandler{Logger: logger, Shop: svc, Store: st}
}

// ListProducts handles GET /api/v1/products.
func (h *ProductsHandler) ListProducts(c *fiber.Ctx) error {
	products, err := h.Shop.Catalog(c.Context())
	if err != nil {
		h.Logger.Error("api.list_products_failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if products == nil {
		products = []model.Product{}
	}
	return c.Status(fiber.StatusOK).JSON(products)
}

// GetProduct handles GET /api/v1/products/:id. The detail includes the USD
// price and the crypto amount per payable currency.
func (h *ProductsHandler) GetProduct(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}

	detail, err := h.Shop.ProductDetail(c.Context(), id)
	if err != nil {
		if errors.Is(err, shop.ErrProductNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		h.Logger.Error("api.get_product_failed", zap.Int64("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(detail)
}

// AddProduct handles POST /api/v1/products.
func (h *ProductsHandler) AddProduct(c *fiber.Ctx) error {
	product, deliverable, err := parseProductRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	id, err := h.Store.AddProduct(c.Context(), *product)
	if err != nil {
		h.Logger.Error("api.add_product_failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if deliverable != nil {
		deliverable.ProductID = id
		if err := h.Store.UpsertDeliverable(c.Context(), *deliverable); err != nil {
			h.Logger.Error("api.add_deliverable_failed", zap.Int64("product_id", id), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	h.Logger.Info("api.product_added", zap.Int64("id", id), zap.String("name", product.Name))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// UpdateProduct handles PUT /api/v1/products/:id.
func (h *ProductsHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}

	product, deliverable, err := parseProductRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	product.ID = id

	found, err := h.Store.UpdateProduct(c.Context(), *product)
	if err != nil {
		h.Logger.Error("api.update_product_failed", zap.Int64("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product not found"})
	}

	if deliverable != nil {
		deliverable.ProductID = id
		if err := h.Store.UpsertDeliverable(c.Context(), *deliverable); err != nil {
			h.Logger.Error("api.update_deliverable_failed", zap.Int64("product_id", id), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"id": id})
}

// DeleteProduct handles DELETE /api/v1/products/:id. Products referenced by
// orders cannot be deleted.
func (h *ProductsHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}

	if err := h.Store.DeleteProduct(c.Context(), id); err != nil {
		if errors.Is(err, store.ErrProductReferenced) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		h.Logger.Error("api.delete_product_failed", zap.Int64("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	h.Logger.Info("api.product_deleted", zap.Int64("id", id))
	return c.SendStatus(fiber.StatusNoContent)
}

func parseProductRequest(c *fiber.Ctx) (*model.Product, *model.Deliverable, error) {
	var req ProductRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, nil, err
	}
	if req.Name == "" {
		return nil, nil, errors.New("name is required")
	}
	price, err := decimal.NewFromString(req.PriceFiat)
	if err != nil {
		return nil, nil, errors.New("price_fiat must be a decimal string")
	}
	if price.Sign() <= 0 {
		return nil, nil, errors.New("price_fiat must be positive")
	}
	if len(req.AvailableCurrencies) == 0 {
		return nil, nil, errors.New("available_currencies must not be empty")
	}

	product := &model.Product{
		Name:                req.Name,
		Description:         req.Description,
		PriceFiat:           price,
		ImageURL:            req.ImageURL,
		AvailableCurrencies: req.AvailableCurrencies,
	}

	var deliverable *model.Deliverable
	if req.Deliverable != nil {
		kind := model.DeliverableKind(req.Deliverable.Kind)
		switch kind {
		case model.DeliverableFile:
			if req.Deliverable.FilePath == "" {
				return nil, nil, errors.New("file deliverable requires file_path")
			}
		case model.DeliverableText:
			if req.Deliverable.Content == "" {
				return nil, nil, errors.New("text deliverable requires content")
			}
		default:
			return nil, nil, errors.New("deliverable kind must be file or text")
		}
		deliverable = &model.Deliverable{
			Kind:        kind,
			FilePath:    req.Deliverable.FilePath,
			FileName:    req.Deliverable.FileName,
			Content:     req.Deliverable.Content,
			Description: req.Deliverable.Description,
		}
	}

	return product, deliverable, nil
}
