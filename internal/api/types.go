package api

import (
	"context"

	"github.com/whalepay/storefront/internal/cryptopay"
	"github.com/whalepay/storefront/internal/shop"
	"github.com/whalepay/storefront/pkg/model"
)

// ShopService is the orchestration surface the handlers call.
type ShopService interface {
	Catalog(ctx context.Context) ([]model.Product, error)
	ProductDetail(ctx context.Context, id int64) (*shop.ProductDetail, error)
	Purchase(ctx context.Context, userID, productID int64, currency string) (*shop.PurchaseResult, error)
	CheckPayment(ctx context.Context, invoiceID int64) (*shop.CheckResult, error)
	Balance(ctx context.Context) ([]cryptopay.AssetBalance, error)
}

// CatalogStore is the admin side of the product catalog.
type CatalogStore interface {
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	AddProduct(ctx context.Context, p model.Product) (int64, error)
	UpdateProduct(ctx context.Context, p model.Product) (bool, error)
	DeleteProduct(ctx context.Context, id int64) error
	UpsertDeliverable(ctx context.Context, d model.Deliverable) error
}

// SupportService records support requests.
type SupportService interface {
	OpenTicket(ctx context.Context, userID int64, message string) (*model.SupportTicket, error)
	CloseTicket(ctx context.Context, id string) (bool, error)
}

// RateRefresher triggers an immediate rates refresh.
type RateRefresher interface {
	RefreshOnce(ctx context.Context) model.RateSnapshot
}

// PurchaseRequest is the body of POST /api/v1/orders.
type PurchaseRequest struct {
	UserID    int64  `json:"user_id"`
	ProductID int64  `json:"product_id"`
	Currency  string `json:"currency"`
}

// ProductRequest is the body of product create/update calls.
type ProductRequest struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	PriceFiat           string   `json:"price_fiat"`
	ImageURL            string   `json:"image_url"`
	AvailableCurrencies []string `json:"available_currencies"`

	// Optional deliverable attached in the same call.
	Deliverable *DeliverableRequest `json:"deliverable,omitempty"`
}

type DeliverableRequest struct {
	Kind        string `json:"kind"` // file | text
	FilePath    string `json:"file_path,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	Content     string `json:"content,omitempty"`
	Description string `json:"description,omitempty"`
}

// SupportRequest is the body of POST /api/v1/support.
type SupportRequest struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}
