package cryptopay

import "strings"

//
// ────────────────────────────────────────────────
//   STOREFRONT → PROVIDER : Requests
// ────────────────────────────────────────────────
//

// InvoiceRequest is the payload for creating an invoice.
// POST /createInvoice
type InvoiceRequest struct {
	Asset       string `json:"asset"`        // TON, BTC, USDT, ...
	Amount      string `json:"amount"`       // decimal string, provider-side validated
	Description string `json:"description,omitempty"`
	Payload     string `json:"payload,omitempty"`       // opaque, returned unchanged on query
	PaidBtnName string `json:"paid_btn_name,omitempty"` // e.g. "callback"
	PaidBtnURL  string `json:"paid_btn_url,omitempty"`  // shown to the user after payment
	ExpiresIn   int    `json:"expires_in,omitempty"`    // seconds
}

// invoiceQueryRequest is the payload for querying invoices.
// POST /getInvoices
type invoiceQueryRequest struct {
	InvoiceIDs []int64 `json:"invoice_ids"`
}

//
// ────────────────────────────────────────────────
//   PROVIDER → STOREFRONT : Responses
// ────────────────────────────────────────────────
//

// Invoice is the provider's invoice record.
type Invoice struct {
	InvoiceID int64  `json:"invoice_id"`
	Status    string `json:"status"` // active | paid | expired
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	PayURL    string `json:"pay_url"`
	Payload   string `json:"payload"`
	CreatedAt string `json:"created_at"`
	PaidAt    string `json:"paid_at,omitempty"`
}

// AssetBalance is one entry of the provider account balance.
type AssetBalance struct {
	CurrencyCode string `json:"currency_code"`
	Available    string `json:"available"`
	OnHold       string `json:"onhold"`
}

// APIError is the provider's error object on ok=false responses.
type APIError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

type invoiceEnvelope struct {
	OK     bool      `json:"ok"`
	Result *Invoice  `json:"result"`
	Error  *APIError `json:"error"`
}

type invoiceListEnvelope struct {
	OK     bool `json:"ok"`
	Result *struct {
		Items []Invoice `json:"items"`
	} `json:"result"`
	Error *APIError `json:"error"`
}

type balanceEnvelope struct {
	OK     bool           `json:"ok"`
	Result []AssetBalance `json:"result"`
	Error  *APIError      `json:"error"`
}

//
// ────────────────────────────────────────────────
//   Normalized results (no exceptions cross this boundary)
// ────────────────────────────────────────────────
//

// ErrorKind categorizes invoice creation failures for user-facing messages.
type ErrorKind string

const (
	ErrNone             ErrorKind = ""
	ErrUnsupportedAsset ErrorKind = "unsupported_asset"
	ErrInvalidAmount    ErrorKind = "invalid_amount"
	ErrBadReturnURL     ErrorKind = "bad_return_url"
	ErrProvider         ErrorKind = "provider"
	ErrTransport        ErrorKind = "transport"
)

// InvoiceResult is the flat tagged result of CreateInvoice.
type InvoiceResult struct {
	OK        bool
	InvoiceID int64
	PayURL    string
	ErrorKind ErrorKind
	Message   string
}

// Status is the normalized invoice status.
type Status string

const (
	StatusPending Status = "pending" // provider reports "active"
	StatusPaid    Status = "paid"
	StatusExpired Status = "expired"
	// StatusCheckFailed means the status could not be determined. Callers
	// must not conflate this with "not yet paid".
	StatusCheckFailed Status = "check_failed"
)

// InvoiceCheck is the result of CheckInvoice.
type InvoiceCheck struct {
	Status  Status
	Payload string
	Message string // diagnostic detail when Status == StatusCheckFailed
}

// classifyError maps a provider error name to an ErrorKind by pattern
// matching its text, mirroring the categories surfaced to users.
func classifyError(e *APIError) ErrorKind {
	if e == nil {
		return ErrProvider
	}
	name := strings.ToUpper(e.Name)
	switch {
	case strings.Contains(name, "ASSET") || strings.Contains(name, "CURRENCY"):
		return ErrUnsupportedAsset
	case strings.Contains(name, "AMOUNT"):
		return ErrInvalidAmount
	case strings.Contains(name, "PAID_BTN_URL") || strings.Contains(name, "URL"):
		return ErrBadReturnURL
	default:
		return ErrProvider
	}
}

// normalizeStatus maps provider status strings onto the local Status type.
func normalizeStatus(providerStatus string) Status {
	switch strings.ToLower(providerStatus) {
	case "active":
		return StatusPending
	case "paid":
		return StatusPaid
	case "expired":
		return StatusExpired
	default:
		return StatusPending
	}
}
