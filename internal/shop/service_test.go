package shop

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/amount"
	"github.com/whalepay/storefront/internal/cryptopay"
	"github.com/whalepay/storefront/internal/rates"
	"github.com/whalepay/storefront/pkg/model"
)

// --- fakes ---

type fakeStore struct {
	products map[int64]*model.Product
	orders   map[int64]*model.Order // by invoice id

	nextOrderID int64
	created     []model.Order
	attached    map[int64]int64 // order id → invoice id
	paid        []int64
	expired     []int64
}

func newFakeShopStore() *fakeStore {
	return &fakeStore{
		products: map[int64]*model.Product{},
		orders:   map[int64]*model.Order{},
		attached: map[int64]int64{},
	}
}

func (f *fakeStore) ListProducts(context.Context) ([]model.Product, error) {
	var out []model.Product
	for _, p := range f.products {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) GetProduct(_ context.Context, id int64) (*model.Product, error) {
	return f.products[id], nil
}

func (f *fakeStore) CreateOrder(_ context.Context, userID, productID int64, currency string, amt decimal.Decimal) (int64, error) {
	f.nextOrderID++
	f.created = append(f.created, model.Order{
		ID: f.nextOrderID, UserID: userID, ProductID: productID,
		Currency: currency, Amount: amt, Status: model.OrderPending,
	})
	return f.nextOrderID, nil
}

func (f *fakeStore) AttachInvoice(_ context.Context, orderID, invoiceID int64) error {
	f.attached[orderID] = invoiceID
	return nil
}

func (f *fakeStore) MarkPaid(_ context.Context, invoiceID int64) error {
	f.paid = append(f.paid, invoiceID)
	return nil
}

func (f *fakeStore) MarkExpired(_ context.Context, invoiceID int64) error {
	f.expired = append(f.expired, invoiceID)
	return nil
}

func (f *fakeStore) GetOrderByInvoice(_ context.Context, invoiceID int64) (*model.Order, error) {
	return f.orders[invoiceID], nil
}

type fakeGateway struct {
	invoiceResult cryptopay.InvoiceResult
	check         cryptopay.InvoiceCheck
	lastRequest   *cryptopay.InvoiceRequest
}

func (f *fakeGateway) CreateInvoice(_ context.Context, req *cryptopay.InvoiceRequest) cryptopay.InvoiceResult {
	f.lastRequest = req
	return f.invoiceResult
}

func (f *fakeGateway) CheckInvoice(context.Context, int64) cryptopay.InvoiceCheck {
	return f.check
}

func (f *fakeGateway) GetBalance(context.Context) ([]cryptopay.AssetBalance, error) {
	return []cryptopay.AssetBalance{{CurrencyCode: "TON", Available: "10.5"}}, nil
}

type fakeDeliverer struct {
	delivered []int64
	err       error
}

func (f *fakeDeliverer) Deliver(_ context.Context, orderID int64) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, orderID)
	return nil
}

type fakeCourier struct {
	events []string
}

func (f *fakeCourier) PublishEvent(_ context.Context, _, eventType string, _ int64, _ any) error {
	f.events = append(f.events, eventType)
	return nil
}

// --- setup ---

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeGateway, *fakeDeliverer, *fakeCourier) {
	t.Helper()

	store := newFakeShopStore()
	store.products[3] = &model.Product{
		ID:                  3,
		Name:                "Trading Guide",
		PriceFiat:           decimal.NewFromInt(100),
		AvailableCurrencies: []string{"TON", "BTC", "DOGE"},
	}

	cache := rates.NewCache(model.RateSnapshot{
		FiatUSD:  0.01,
		AssetUSD: map[string]float64{"TON": 5.0, "BTC": 60000.0},
	})
	calc := amount.NewCalculator(zap.NewNop(), cache, nil)

	gateway := &fakeGateway{
		invoiceResult: cryptopay.InvoiceResult{OK: true, InvoiceID: 4321, PayURL: "https://pay.example/i/4321"},
	}
	deliverer := &fakeDeliverer{}
	courier := &fakeCourier{}

	svc := NewService(zap.NewNop(), store, cache, calc, gateway, deliverer, courier, Options{
		SupportedAssets: []string{"TON", "BTC", "ETH", "USDT", "USDC", "BUSD"},
		ReturnURL:       "https://t.me/whalepaybot",
		InvoiceExpiry:   1800,
		EventSubject:    "evt.storefront",
	})
	return svc, store, gateway, deliverer, courier
}

// --- purchase ---

func TestPurchase_Success(t *testing.T) {
	svc, store, gateway, _, courier := newTestService(t)

	res, err := svc.Purchase(context.Background(), 42, 3, "TON")
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.EqualValues(t, 1, res.OrderID)
	assert.EqualValues(t, 4321, res.InvoiceID)
	assert.Equal(t, "https://pay.example/i/4321", res.PayURL)
	// 100 × 0.01 ÷ 5 = 0.2 TON
	assert.Equal(t, "0.2", res.Amount)

	require.NotNil(t, gateway.lastRequest)
	assert.Equal(t, "order_1", gateway.lastRequest.Payload)
	assert.Equal(t, 1800, gateway.lastRequest.ExpiresIn)
	assert.Equal(t, "https://t.me/whalepaybot", gateway.lastRequest.PaidBtnURL)

	assert.EqualValues(t, 4321, store.attached[1])
	assert.Equal(t, []string{"order.invoice_created"}, courier.events)
}

func TestPurchase_LowercaseCurrencyNormalized(t *testing.T) {
	svc, _, gateway, _, _ := newTestService(t)

	res, err := svc.Purchase(context.Background(), 42, 3, "ton")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "TON", gateway.lastRequest.Asset)
}

func TestPurchase_CurrencyNotInProductList(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)

	// ETH is globally supported but the product does not accept it
	_, err := svc.Purchase(context.Background(), 42, 3, "ETH")
	require.ErrorIs(t, err, ErrCurrencyNotAllowed)
	assert.Empty(t, store.created)
}

func TestPurchase_CurrencyNotGloballySupported(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)

	// DOGE is in the product list but not globally supported
	_, err := svc.Purchase(context.Background(), 42, 3, "DOGE")
	require.ErrorIs(t, err, ErrCurrencyNotAllowed)
	assert.Empty(t, store.created)
}

func TestPurchase_UnknownProduct(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.Purchase(context.Background(), 42, 404, "TON")
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestPurchase_InvoiceRejectedLeavesOrderPending(t *testing.T) {
	svc, store, gateway, _, courier := newTestService(t)
	gateway.invoiceResult = cryptopay.InvoiceResult{
		OK: false, ErrorKind: cryptopay.ErrUnsupportedAsset, Message: "provider error 400: ASSET_NOT_SUPPORTED",
	}

	res, err := svc.Purchase(context.Background(), 42, 3, "TON")
	require.NoError(t, err)

	assert.False(t, res.OK)
	assert.Equal(t, string(cryptopay.ErrUnsupportedAsset), res.ErrorKind)
	assert.Contains(t, res.Message, "currency")

	// order exists but no invoice attached, no event published
	require.Len(t, store.created, 1)
	assert.Equal(t, model.OrderPending, store.created[0].Status)
	assert.Empty(t, store.attached)
	assert.Empty(t, courier.events)
}

func TestPurchase_FailureMessagesAreCategorySpecific(t *testing.T) {
	kinds := []cryptopay.ErrorKind{
		cryptopay.ErrUnsupportedAsset,
		cryptopay.ErrInvalidAmount,
		cryptopay.ErrBadReturnURL,
		cryptopay.ErrTransport,
	}

	seen := map[string]cryptopay.ErrorKind{}
	for _, kind := range kinds {
		svc, _, gateway, _, _ := newTestService(t)
		gateway.invoiceResult = cryptopay.InvoiceResult{OK: false, ErrorKind: kind}

		res, err := svc.Purchase(context.Background(), 42, 3, "TON")
		require.NoError(t, err)
		require.NotEmpty(t, res.Message, kind)
		seen[res.Message] = kind
	}

	// transport and provider share a message; the rest must be distinct
	assert.GreaterOrEqual(t, len(seen), 3)
}

// --- payment check ---

func seedOrder(store *fakeStore, orderID, invoiceID int64) {
	store.orders[invoiceID] = &model.Order{
		ID: orderID, UserID: 42, ProductID: 3, InvoiceID: invoiceID,
		Currency: "TON", Status: model.OrderPending,
	}
}

func TestCheckPayment_Pending(t *testing.T) {
	svc, store, gateway, deliverer, _ := newTestService(t)
	seedOrder(store, 7, 4321)
	gateway.check = cryptopay.InvoiceCheck{Status: cryptopay.StatusPending}

	res, err := svc.CheckPayment(context.Background(), 4321)
	require.NoError(t, err)

	assert.Equal(t, "pending", res.Status)
	assert.Empty(t, store.paid)
	assert.Empty(t, store.expired)
	assert.Empty(t, deliverer.delivered)
}

func TestCheckPayment_CheckFailedIsNotPending(t *testing.T) {
	svc, store, gateway, _, _ := newTestService(t)
	seedOrder(store, 7, 4321)
	gateway.check = cryptopay.InvoiceCheck{Status: cryptopay.StatusCheckFailed, Message: "timeout"}

	res, err := svc.CheckPayment(context.Background(), 4321)
	require.NoError(t, err)

	assert.Equal(t, "check_failed", res.Status)
	assert.NotEqual(t, "pending", res.Status)
	assert.Empty(t, store.paid)
}

func TestCheckPayment_Expired(t *testing.T) {
	svc, store, gateway, _, _ := newTestService(t)
	seedOrder(store, 7, 4321)
	gateway.check = cryptopay.InvoiceCheck{Status: cryptopay.StatusExpired}

	res, err := svc.CheckPayment(context.Background(), 4321)
	require.NoError(t, err)

	assert.Equal(t, "expired", res.Status)
	assert.Equal(t, []int64{4321}, store.expired)
	assert.Empty(t, store.paid)
}

func TestCheckPayment_PaidTriggersDelivery(t *testing.T) {
	svc, store, gateway, deliverer, _ := newTestService(t)
	seedOrder(store, 7, 4321)
	gateway.check = cryptopay.InvoiceCheck{Status: cryptopay.StatusPaid, Payload: "order_7"}

	res, err := svc.CheckPayment(context.Background(), 4321)
	require.NoError(t, err)

	assert.Equal(t, "paid", res.Status)
	assert.True(t, res.Delivered)
	assert.Equal(t, []int64{4321}, store.paid)
	assert.Equal(t, []int64{7}, deliverer.delivered)
}

func TestCheckPayment_RepeatedPaidCheckStaysIdempotent(t *testing.T) {
	svc, store, gateway, deliverer, _ := newTestService(t)
	seedOrder(store, 7, 4321)
	gateway.check = cryptopay.InvoiceCheck{Status: cryptopay.StatusPaid, Payload: "order_7"}

	_, err := svc.CheckPayment(context.Background(), 4321)
	require.NoError(t, err)
	_, err = svc.CheckPayment(context.Background(), 4321)
	require.NoError(t, err)

	// MarkPaid and Deliver are both idempotent downstream; the service just
	// calls them again and relies on the row claim
	assert.Len(t, store.paid, 2)
	assert.Len(t, deliverer.delivered, 2)
}

func TestCheckPayment_PayloadMismatchRejected(t *testing.T) {
	svc, store, gateway, deliverer, _ := newTestService(t)
	seedOrder(store, 7, 4321)
	gateway.check = cryptopay.InvoiceCheck{Status: cryptopay.StatusPaid, Payload: "order_9"}

	_, err := svc.CheckPayment(context.Background(), 4321)
	require.ErrorIs(t, err, ErrMalformedPayload)
	assert.Empty(t, store.paid)
	assert.Empty(t, deliverer.delivered)
}

func TestCheckPayment_UnknownInvoice(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.CheckPayment(context.Background(), 999)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

// --- payload parsing ---

func TestParseOrderPayload(t *testing.T) {
	cases := []struct {
		payload string
		want    int64
		ok      bool
	}{
		{"order_7", 7, true},
		{"order_123456", 123456, true},
		{"ORDER_7", 0, false},
		{"order_", 0, false},
		{"order_x", 0, false},
		{"order_7x", 0, false},
		{"order_+7", 0, false},
		{"7", 0, false},
		{"", 0, false},
	}

	for _, tc := range cases {
		got, err := parseOrderPayload(tc.payload)
		if tc.ok {
			require.NoError(t, err, tc.payload)
			assert.Equal(t, tc.want, got, tc.payload)
		} else {
			assert.ErrorIs(t, err, ErrMalformedPayload, tc.payload)
		}
	}
}

// --- product detail ---

func TestProductDetail_PricesPayableCurrencies(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	detail, err := svc.ProductDetail(context.Background(), 3)
	require.NoError(t, err)

	// 100 fiat × 0.01 = 1 USD
	assert.Equal(t, "1", detail.PriceUSD)
	// DOGE filtered out: not globally supported
	assert.Len(t, detail.Amounts, 2)
	assert.Equal(t, "0.2", detail.Amounts["TON"])
	assert.Equal(t, "0.00001667", detail.Amounts["BTC"]) // 1 USD ÷ 60000 at 8 dp
}

func TestProductDetail_UnknownProduct(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.ProductDetail(context.Background(), 404)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestBalance_Passthrough(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	balances, err := svc.Balance(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "TON", balances[0].CurrencyCode)
}
