package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/metrics"
	"github.com/whalepay/storefront/pkg/model"
)

// Store is the slice of persistence the dispatcher needs.
type Store interface {
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetDeliverable(ctx context.Context, productID int64) (*model.Deliverable, error)
	ClaimDelivery(ctx context.Context, orderID int64) (bool, error)
}

// Courier carries the dispatched good to the user. The production courier
// publishes envelope events that the bot transport relays.
type Courier interface {
	PublishEvent(ctx context.Context, subject, eventType string, userID int64, payload any) error
}

// Dispatch is the payload of a delivery.dispatched event.
type Dispatch struct {
	OrderID     int64  `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Kind        string `json:"kind"`
	FilePath    string `json:"file_path,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	Content     string `json:"content,omitempty"`
	Description string `json:"description,omitempty"`
}

// Failure is the payload of a delivery.failed event. Message is the
// user-facing apology text.
type Failure struct {
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

var apologies = map[string]string{
	"product_missing":     "Sorry, this product is no longer available. Please contact support and we will sort it out.",
	"deliverable_missing": "Sorry, we could not locate your purchase. Please contact support and we will sort it out.",
	"file_missing":        "Sorry, the file for your purchase is temporarily unavailable. Please contact support and we will sort it out.",
}

// Dispatcher hands over purchased digital goods. ClaimDelivery guards the
// handover, so a paid order is dispatched at most once no matter how many
// concurrent payment confirmations race.
type Dispatcher struct {
	logger   *zap.Logger
	store    Store
	courier  Courier
	subject  string
	filesDir string
}

func NewDispatcher(logger *zap.Logger, store Store, courier Courier, subject, filesDir string) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		store:    store,
		courier:  courier,
		subject:  subject,
		filesDir: filesDir,
	}
}

// Deliver dispatches the digital good for a paid order. A lost claim means
// another caller already delivered; that is a successful no-op.
func (d *Dispatcher) Deliver(ctx context.Context, orderID int64) error {
	order, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %d: %w", orderID, err)
	}
	if order == nil {
		metrics.IncDelivery("order_missing")
		return fmt.Errorf("order %d not found", orderID)
	}

	won, err := d.store.ClaimDelivery(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("claim delivery for order %d: %w", order.ID, err)
	}
	if !won {
		d.logger.Info("delivery.already_dispatched", zap.Int64("order_id", order.ID))
		metrics.IncDelivery("duplicate")
		return nil
	}

	product, err := d.store.GetProduct(ctx, order.ProductID)
	if err != nil {
		return fmt.Errorf("load product %d: %w", order.ProductID, err)
	}
	if product == nil {
		return d.fail(ctx, order, "product_missing")
	}

	item, err := d.store.GetDeliverable(ctx, product.ID)
	if err != nil {
		return fmt.Errorf("load deliverable for product %d: %w", product.ID, err)
	}
	if item == nil {
		return d.fail(ctx, order, "deliverable_missing")
	}

	dispatch := Dispatch{
		OrderID:     order.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Kind:        string(item.Kind),
		Description: item.Description,
	}

	switch item.Kind {
	case model.DeliverableFile:
		path := filepath.Join(d.filesDir, item.FilePath)
		if _, err := os.Stat(path); err != nil {
			d.logger.Error("delivery.file_missing",
				zap.Int64("order_id", order.ID),
				zap.String("path", path),
				zap.Error(err))
			return d.fail(ctx, order, "file_missing")
		}
		dispatch.FilePath = path
		dispatch.FileName = item.FileName
	case model.DeliverableText:
		// "{order_id}" in stored content is replaced with the real id, so
		// licenses and claim codes can reference the purchase.
		dispatch.Content = strings.ReplaceAll(item.Content, "{order_id}", strconv.FormatInt(order.ID, 10))
	default:
		return d.fail(ctx, order, "deliverable_missing")
	}

	if err := d.courier.PublishEvent(ctx, d.subject, "delivery.dispatched", order.UserID, dispatch); err != nil {
		metrics.IncDelivery("publish_error")
		return fmt.Errorf("publish dispatch for order %d: %w", order.ID, err)
	}

	d.logger.Info("delivery.dispatched",
		zap.Int64("order_id", order.ID),
		zap.Int64("product_id", product.ID),
		zap.String("kind", string(item.Kind)))
	metrics.IncDelivery("ok")
	return nil
}

// fail apologizes to the user with a reason-specific message. The claim is
// not released: a broken deliverable needs operator intervention, not
// automatic retries.
func (d *Dispatcher) fail(ctx context.Context, order *model.Order, reason string) error {
	metrics.IncDelivery(reason)
	metrics.IncError("delivery", reason)

	failure := Failure{
		OrderID: order.ID,
		Reason:  reason,
		Message: apologies[reason],
	}
	if err := d.courier.PublishEvent(ctx, d.subject, "delivery.failed", order.UserID, failure); err != nil {
		return fmt.Errorf("publish failure for order %d: %w", order.ID, err)
	}
	return fmt.Errorf("delivery of order %d failed: %s", order.ID, reason)
}
