package cryptopay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/httpclient"
	"github.com/whalepay/storefront/internal/metrics"
	"github.com/whalepay/storefront/internal/rate"
)

// TokenSource supplies the provider API token per call, so rotation through
// the secrets cache takes effect without restarting.
type TokenSource interface {
	Resolve(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed token (dev and tests).
type StaticToken string

func (t StaticToken) Resolve(context.Context) (string, error) { return string(t), nil }

// Client wraps the Crypto Pay HTTP API. Transport failures and provider
// errors never escape as Go errors from the invoice operations; they are
// normalized into tagged results.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
	tokens  TokenSource
}

// NewClient constructs a Crypto Pay client. timeout bounds each outbound
// call; retryMax is the number of retries on transport/5xx failures.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, baseURL string, tokens TokenSource, timeout time.Duration, retryMax int) *Client {
	httpClient := &http.Client{Timeout: timeout}
	exec := httpclient.New(logger, rateMgr, httpClient, retryMax, "cryptopay", nil)
	return &Client{
		logger:  logger,
		exec:    exec,
		baseURL: baseURL,
		tokens:  tokens,
	}
}

// CreateInvoice creates an invoice at the provider.
// POST /createInvoice
func (c *Client) CreateInvoice(ctx context.Context, req *InvoiceRequest) InvoiceResult {
	c.logger.Info("cryptopay.create_invoice",
		zap.String("asset", req.Asset),
		zap.String("amount", req.Amount),
		zap.String("payload", req.Payload))

	var env invoiceEnvelope
	if err := c.postJSON(ctx, "/createInvoice", req, &env); err != nil {
		metrics.IncProviderRequest("createInvoice", "transport_error")
		metrics.IncInvoice(req.Asset, string(ErrTransport))
		return InvoiceResult{OK: false, ErrorKind: ErrTransport, Message: err.Error()}
	}

	if !env.OK || env.Result == nil {
		kind := classifyError(env.Error)
		msg := "provider rejected invoice"
		if env.Error != nil {
			msg = fmt.Sprintf("provider error %d: %s", env.Error.Code, env.Error.Name)
		}
		c.logger.Error("cryptopay.create_invoice.rejected",
			zap.String("asset", req.Asset),
			zap.String("amount", req.Amount),
			zap.String("kind", string(kind)),
			zap.String("message", msg))
		metrics.IncProviderRequest("createInvoice", "rejected")
		metrics.IncInvoice(req.Asset, string(kind))
		return InvoiceResult{OK: false, ErrorKind: kind, Message: msg}
	}

	metrics.IncProviderRequest("createInvoice", "ok")
	metrics.IncInvoice(req.Asset, "ok")
	c.logger.Info("cryptopay.invoice_created",
		zap.Int64("invoice_id", env.Result.InvoiceID))

	return InvoiceResult{
		OK:        true,
		InvoiceID: env.Result.InvoiceID,
		PayURL:    env.Result.PayURL,
	}
}

// CheckInvoice queries the provider for the current status of one invoice.
// POST /getInvoices
// A missing or malformed response maps to StatusCheckFailed, which is
// distinct from StatusPending.
func (c *Client) CheckInvoice(ctx context.Context, invoiceID int64) InvoiceCheck {
	var env invoiceListEnvelope
	err := c.postJSON(ctx, "/getInvoices", &invoiceQueryRequest{InvoiceIDs: []int64{invoiceID}}, &env)
	if err != nil {
		metrics.IncProviderRequest("getInvoices", "transport_error")
		return InvoiceCheck{Status: StatusCheckFailed, Message: err.Error()}
	}

	if !env.OK || env.Result == nil || len(env.Result.Items) == 0 {
		msg := "invoice not found in provider response"
		if env.Error != nil {
			msg = fmt.Sprintf("provider error %d: %s", env.Error.Code, env.Error.Name)
		}
		c.logger.Warn("cryptopay.check_invoice.failed",
			zap.Int64("invoice_id", invoiceID),
			zap.String("message", msg))
		metrics.IncProviderRequest("getInvoices", "failed")
		return InvoiceCheck{Status: StatusCheckFailed, Message: msg}
	}

	item := env.Result.Items[0]
	metrics.IncProviderRequest("getInvoices", "ok")
	return InvoiceCheck{
		Status:  normalizeStatus(item.Status),
		Payload: item.Payload,
	}
}

// GetBalance returns the provider account balances.
// POST /getBalance
func (c *Client) GetBalance(ctx context.Context) ([]AssetBalance, error) {
	var env balanceEnvelope
	if err := c.postJSON(ctx, "/getBalance", struct{}{}, &env); err != nil {
		metrics.IncProviderRequest("getBalance", "transport_error")
		return nil, err
	}
	if !env.OK {
		metrics.IncProviderRequest("getBalance", "failed")
		if env.Error != nil {
			return nil, fmt.Errorf("provider error %d: %s", env.Error.Code, env.Error.Name)
		}
		return nil, fmt.Errorf("provider rejected balance query")
	}
	metrics.IncProviderRequest("getBalance", "ok")
	return env.Result, nil
}

// postJSON performs an authenticated POST request with a JSON body.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	token, err := c.tokens.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve provider token: %w", err)
	}

	start := time.Now()
	defer metrics.ObserveDuration(metrics.ProviderRequestDuration, start, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Crypto-Pay-API-Token", token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.exec.DoJSON(ctx, req, "cryptopay:"+c.baseURL, out)
}
