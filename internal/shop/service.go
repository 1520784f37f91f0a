package shop

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/amount"
	"github.com/whalepay/storefront/internal/cryptopay"
	"github.com/whalepay/storefront/internal/rates"
	"github.com/whalepay/storefront/pkg/model"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrCurrencyNotAllowed = errors.New("currency not accepted for this product")
	ErrMalformedPayload   = errors.New("malformed invoice payload")
)

// Store is the persistence slice the shop flows need.
type Store interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	CreateOrder(ctx context.Context, userID, productID int64, currency string, amt decimal.Decimal) (int64, error)
	AttachInvoice(ctx context.Context, orderID, invoiceID int64) error
	MarkPaid(ctx context.Context, invoiceID int64) error
	MarkExpired(ctx context.Context, invoiceID int64) error
	GetOrderByInvoice(ctx context.Context, invoiceID int64) (*model.Order, error)
}

// InvoiceGateway is the payment-provider boundary.
type InvoiceGateway interface {
	CreateInvoice(ctx context.Context, req *cryptopay.InvoiceRequest) cryptopay.InvoiceResult
	CheckInvoice(ctx context.Context, invoiceID int64) cryptopay.InvoiceCheck
	GetBalance(ctx context.Context) ([]cryptopay.AssetBalance, error)
}

// Deliverer hands over the purchased good once payment is confirmed.
type Deliverer interface {
	Deliver(ctx context.Context, orderID int64) error
}

// Courier publishes storefront events for the bot transport.
type Courier interface {
	PublishEvent(ctx context.Context, subject, eventType string, userID int64, payload any) error
}

// Options carries the provider-facing knobs of the purchase flow.
type Options struct {
	SupportedAssets []string
	ReturnURL       string
	InvoiceExpiry   int // seconds
	EventSubject    string
}

// Service orchestrates catalog browsing, purchases, and payment checks.
type Service struct {
	logger    *zap.Logger
	store     Store
	rates     *rates.Cache
	calc      *amount.Calculator
	invoices  InvoiceGateway
	deliverer Deliverer
	courier   Courier

	supported map[string]bool
	returnURL string
	expiry    int
	subject   string
}

func NewService(logger *zap.Logger, store Store, cache *rates.Cache, calc *amount.Calculator,
	invoices InvoiceGateway, deliverer Deliverer, courier Courier, opts Options) *Service {

	supported := make(map[string]bool, len(opts.SupportedAssets))
	for _, asset := range opts.SupportedAssets {
		supported[strings.ToUpper(asset)] = true
	}

	return &Service{
		logger:    logger,
		store:     store,
		rates:     cache,
		calc:      calc,
		invoices:  invoices,
		deliverer: deliverer,
		courier:   courier,
		supported: supported,
		returnURL: opts.ReturnURL,
		expiry:    opts.InvoiceExpiry,
		subject:   opts.EventSubject,
	}
}

// Catalog lists all products.
func (s *Service) Catalog(ctx context.Context) ([]model.Product, error) {
	return s.store.ListProducts(ctx)
}

// ProductDetail is a product plus its payable currencies and the crypto
// amount each would cost right now.
type ProductDetail struct {
	Product  model.Product     `json:"product"`
	PriceUSD string            `json:"price_usd"`
	Amounts  map[string]string `json:"amounts"`
}

// ProductDetail resolves a product and prices it in every currency the
// buyer may pay with.
func (s *Service) ProductDetail(ctx context.Context, id int64) (*ProductDetail, error) {
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	snap := s.rates.Read()
	priceUSD := product.PriceFiat.Mul(decimal.NewFromFloat(snap.FiatUSD)).Round(2)

	amounts := make(map[string]string)
	for _, currency := range s.payableCurrencies(product) {
		amt, err := s.calc.CryptoAmount(product.PriceFiat, currency)
		if err != nil {
			return nil, fmt.Errorf("price product %d in %s: %w", product.ID, currency, err)
		}
		amounts[currency] = amt.String()
	}

	return &ProductDetail{
		Product:  *product,
		PriceUSD: priceUSD.String(),
		Amounts:  amounts,
	}, nil
}

// payableCurrencies is the product's accepted list filtered through the
// globally supported asset set. An empty result means the product cannot be
// bought until the operator fixes its currency list.
func (s *Service) payableCurrencies(product *model.Product) []string {
	var out []string
	for _, currency := range product.AvailableCurrencies {
		if s.supported[strings.ToUpper(currency)] {
			out = append(out, strings.ToUpper(currency))
		}
	}
	return out
}

// PurchaseResult is the flat outcome of a purchase attempt. A rejected
// invoice leaves the order pending and carries a category-specific message.
type PurchaseResult struct {
	OK        bool   `json:"ok"`
	OrderID   int64  `json:"order_id"`
	InvoiceID int64  `json:"invoice_id,omitempty"`
	PayURL    string `json:"pay_url,omitempty"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

var invoiceFailureMessages = map[cryptopay.ErrorKind]string{
	cryptopay.ErrUnsupportedAsset: "This currency is temporarily unavailable for payment. Please pick another one.",
	cryptopay.ErrInvalidAmount:    "The payment amount is invalid for this currency. Please pick another one.",
	cryptopay.ErrBadReturnURL:     "Payment is misconfigured on our side. Please contact support.",
	cryptopay.ErrProvider:         "The payment service is temporarily unavailable. Please try again later.",
	cryptopay.ErrTransport:        "The payment service is temporarily unavailable. Please try again later.",
}

// Purchase validates the currency, prices the product, creates a pending
// order, and requests an invoice from the provider.
func (s *Service) Purchase(ctx context.Context, userID, productID int64, currency string) (*PurchaseResult, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	currency = strings.ToUpper(currency)
	allowed := false
	for _, c := range s.payableCurrencies(product) {
		if c == currency {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrCurrencyNotAllowed
	}

	amt, err := s.calc.CryptoAmount(product.PriceFiat, currency)
	if err != nil {
		return nil, fmt.Errorf("price product %d in %s: %w", productID, currency, err)
	}

	orderID, err := s.store.CreateOrder(ctx, userID, productID, currency, amt)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	res := s.invoices.CreateInvoice(ctx, &cryptopay.InvoiceRequest{
		Asset:       currency,
		Amount:      amt.String(),
		Description: "Purchase: " + product.Name,
		Payload:     orderPayload(orderID),
		PaidBtnName: "callback",
		PaidBtnURL:  s.returnURL,
		ExpiresIn:   s.expiry,
	})
	if !res.OK {
		s.logger.Warn("shop.purchase.invoice_rejected",
			zap.Int64("order_id", orderID),
			zap.String("currency", currency),
			zap.String("kind", string(res.ErrorKind)))
		return &PurchaseResult{
			OK:        false,
			OrderID:   orderID,
			Currency:  currency,
			Amount:    amt.String(),
			ErrorKind: string(res.ErrorKind),
			Message:   invoiceFailureMessages[res.ErrorKind],
		}, nil
	}

	if err := s.store.AttachInvoice(ctx, orderID, res.InvoiceID); err != nil {
		return nil, fmt.Errorf("attach invoice %d to order %d: %w", res.InvoiceID, orderID, err)
	}

	result := &PurchaseResult{
		OK:        true,
		OrderID:   orderID,
		InvoiceID: res.InvoiceID,
		PayURL:    res.PayURL,
		Currency:  currency,
		Amount:    amt.String(),
	}

	if err := s.courier.PublishEvent(ctx, s.subject, "order.invoice_created", userID, result); err != nil {
		// the order and invoice are already durable; the buyer still gets
		// the pay URL through the API response
		s.logger.Error("shop.purchase.publish_failed",
			zap.Int64("order_id", orderID), zap.Error(err))
	}

	s.logger.Info("shop.purchase.invoice_created",
		zap.Int64("order_id", orderID),
		zap.Int64("invoice_id", res.InvoiceID),
		zap.String("currency", currency),
		zap.String("amount", amt.String()))

	return result, nil
}

// CheckResult is the outcome of a payment check.
type CheckResult struct {
	Status    string `json:"status"` // pending | paid | expired | check_failed
	OrderID   int64  `json:"order_id"`
	Delivered bool   `json:"delivered"`
	Message   string `json:"message,omitempty"`
}

// CheckPayment queries the provider for the invoice status and advances the
// order accordingly. An unreachable provider is reported as check_failed,
// never as "not paid".
func (s *Service) CheckPayment(ctx context.Context, invoiceID int64) (*CheckResult, error) {
	order, err := s.store.GetOrderByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	check := s.invoices.CheckInvoice(ctx, invoiceID)
	switch check.Status {
	case cryptopay.StatusCheckFailed:
		return &CheckResult{
			Status:  "check_failed",
			OrderID: order.ID,
			Message: "We couldn't find out the payment status right now. Please try again in a moment.",
		}, nil

	case cryptopay.StatusPending:
		return &CheckResult{
			Status:  "pending",
			OrderID: order.ID,
			Message: "The invoice hasn't been paid yet.",
		}, nil

	case cryptopay.StatusExpired:
		if err := s.store.MarkExpired(ctx, invoiceID); err != nil {
			return nil, fmt.Errorf("mark order for invoice %d expired: %w", invoiceID, err)
		}
		return &CheckResult{
			Status:  "expired",
			OrderID: order.ID,
			Message: "The invoice has expired. Please start the purchase again.",
		}, nil
	}

	// paid: verify the payload round-tripped before touching state
	payloadOrderID, err := parseOrderPayload(check.Payload)
	if err != nil {
		s.logger.Error("shop.check.bad_payload",
			zap.Int64("invoice_id", invoiceID),
			zap.String("payload", check.Payload))
		return nil, err
	}
	if payloadOrderID != order.ID {
		s.logger.Error("shop.check.payload_mismatch",
			zap.Int64("invoice_id", invoiceID),
			zap.Int64("payload_order_id", payloadOrderID),
			zap.Int64("order_id", order.ID))
		return nil, ErrMalformedPayload
	}

	if err := s.store.MarkPaid(ctx, invoiceID); err != nil {
		return nil, fmt.Errorf("mark invoice %d paid: %w", invoiceID, err)
	}

	result := &CheckResult{Status: "paid", OrderID: order.ID}
	if err := s.deliverer.Deliver(ctx, order.ID); err != nil {
		s.logger.Error("shop.check.delivery_failed",
			zap.Int64("order_id", order.ID), zap.Error(err))
		result.Message = "Payment received, but delivery hit a problem. Support has been notified."
		return result, nil
	}

	result.Delivered = true
	return result, nil
}

// Balance returns the provider account balances.
func (s *Service) Balance(ctx context.Context) ([]cryptopay.AssetBalance, error) {
	return s.invoices.GetBalance(ctx)
}

func orderPayload(orderID int64) string {
	return fmt.Sprintf("order_%d", orderID)
}

var payloadPattern = regexp.MustCompile(`^order_([0-9]+)$`)

// parseOrderPayload extracts the order id from an invoice payload. Anything
// that is not exactly "order_<digits>" is rejected.
func parseOrderPayload(payload string) (int64, error) {
	m := payloadPattern.FindStringSubmatch(payload)
	if m == nil {
		return 0, ErrMalformedPayload
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, ErrMalformedPayload
	}
	return id, nil
}
