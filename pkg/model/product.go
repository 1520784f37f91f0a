package model

import (
	"github.com/shopspring/decimal"
)

// Product is a digital good offered in the catalog.
// Prices are denominated in the configured fiat currency.
type Product struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	PriceFiat          decimal.Decimal `json:"price_fiat"`
	ImageURL           string          `json:"image_url,omitempty"`
	AvailableCurrencies []string       `json:"available_currencies"`
}

// DeliverableKind distinguishes how a purchased product is handed over.
type DeliverableKind string

const (
	DeliverableFile DeliverableKind = "file"
	DeliverableText DeliverableKind = "text"
)

// Deliverable describes the digital asset attached to a product.
// Exactly one of FilePath/Content is meaningful depending on Kind.
type Deliverable struct {
	ProductID   int64           `json:"product_id"`
	Kind        DeliverableKind `json:"kind"`
	FilePath    string          `json:"file_path,omitempty"`
	FileName    string          `json:"file_name,omitempty"`
	Content     string          `json:"content,omitempty"`
	Description string          `json:"description,omitempty"`
}
