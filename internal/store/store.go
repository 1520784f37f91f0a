package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/whalepay/storefront/pkg/model"
)

// ErrProductReferenced is returned by DeleteProduct when orders still
// reference the product.
var ErrProductReferenced = errors.New("product is referenced by existing orders")

// rateSnapshotKey is the Redis key mirroring the current rate snapshot.
// It carries no TTL: a stale snapshot is better than none after a restart.
const rateSnapshotKey = "rates:snapshot"

// Store defines the contract for persisting catalog, order, and support
// state, and for mirroring the rate snapshot.
type Store interface {
	InitSchema(ctx context.Context) error

	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	AddProduct(ctx context.Context, p model.Product) (int64, error)
	UpdateProduct(ctx context.Context, p model.Product) (bool, error)
	DeleteProduct(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, userID, productID int64, currency string, amount decimal.Decimal) (int64, error)
	AttachInvoice(ctx context.Context, orderID, invoiceID int64) error
	MarkPaid(ctx context.Context, invoiceID int64) error
	MarkExpired(ctx context.Context, invoiceID int64) error
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrderByInvoice(ctx context.Context, invoiceID int64) (*model.Order, error)
	ClaimDelivery(ctx context.Context, orderID int64) (bool, error)

	GetDeliverable(ctx context.Context, productID int64) (*model.Deliverable, error)
	UpsertDeliverable(ctx context.Context, d model.Deliverable) error

	CreateTicket(ctx context.Context, t model.SupportTicket) error
	CloseTicket(ctx context.Context, id string) (bool, error)

	SaveRateSnapshot(ctx context.Context, snap model.RateSnapshot) error
	LoadRateSnapshot(ctx context.Context) (*model.RateSnapshot, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// HybridStore keeps durable state in Postgres and fast-changing mirrors
// (the rate snapshot) in Redis.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-backed, Postgres-durable store.
func NewHybrid(redisAddr, redisPass string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPass,
		DB:       redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// schemaDDL is executed statement by statement: pgx's extended protocol does
// not allow multiple statements per Exec.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price_fiat NUMERIC NOT NULL CHECK (price_fiat > 0),
		image_url TEXT NOT NULL DEFAULT '',
		available_currencies JSONB NOT NULL DEFAULT '[]'
	);`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL REFERENCES products (id),
		invoice_id BIGINT,
		currency TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		delivered_at TIMESTAMPTZ
	);`,
	`CREATE INDEX IF NOT EXISTS idx_orders_invoice ON orders (invoice_id);`,
	`CREATE TABLE IF NOT EXISTS deliverables (
		product_id BIGINT PRIMARY KEY REFERENCES products (id),
		kind TEXT NOT NULL,
		file_path TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS support_tickets (
		id UUID PRIMARY KEY,
		user_id BIGINT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
}

// InitSchema creates the storefront tables when they do not exist yet.
func (s *HybridStore) InitSchema(ctx context.Context) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	for _, ddl := range schemaDDL {
		if _, err := s.PG.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

//
// ─── Products ────────────────────────────────────────────────────────────────
//

func (s *HybridStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		SELECT id, name, description, price_fiat::text, image_url, available_currencies
		FROM products
		ORDER BY id;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *p)
	}
	return results, rows.Err()
}

func (s *HybridStore) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		SELECT id, name, description, price_fiat::text, image_url, available_currencies
		FROM products
		WHERE id = $1;
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanProduct(rows)
}

func scanProduct(rows pgx.Rows) (*model.Product, error) {
	var p model.Product
	var price string
	var currenciesJSON []byte
	if err := rows.Scan(&p.ID, &p.Name, &p.Description, &price, &p.ImageURL, &currenciesJSON); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("bad price for product %d: %w", p.ID, err)
	}
	p.PriceFiat = parsed
	if len(currenciesJSON) > 0 {
		if err := json.Unmarshal(currenciesJSON, &p.AvailableCurrencies); err != nil {
			return nil, fmt.Errorf("bad currency list for product %d: %w", p.ID, err)
		}
	}
	return &p, nil
}

func (s *HybridStore) AddProduct(ctx context.Context, p model.Product) (int64, error) {
	if s.PG == nil {
		return 0, fmt.Errorf("postgres unavailable")
	}
	currencies, err := json.Marshal(p.AvailableCurrencies)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.PG.QueryRow(ctx, `
		INSERT INTO products (name, description, price_fiat, image_url, available_currencies)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id;
	`, p.Name, p.Description, p.PriceFiat.String(), p.ImageURL, currencies).Scan(&id)
	return id, err
}

func (s *HybridStore) UpdateProduct(ctx context.Context, p model.Product) (bool, error) {
	if s.PG == nil {
		return false, fmt.Errorf("postgres unavailable")
	}
	currencies, err := json.Marshal(p.AvailableCurrencies)
	if err != nil {
		return false, err
	}
	tag, err := s.PG.Exec(ctx, `
		UPDATE products
		SET name = $2, description = $3, price_fiat = $4, image_url = $5, available_currencies = $6
		WHERE id = $1;
	`, p.ID, p.Name, p.Description, p.PriceFiat.String(), p.ImageURL, currencies)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteProduct removes a product unless orders reference it.
func (s *HybridStore) DeleteProduct(ctx context.Context, id int64) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	var refs int64
	if err := s.PG.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE product_id = $1;`, id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return ErrProductReferenced
	}
	_, err := s.PG.Exec(ctx, `DELETE FROM deliverables WHERE product_id = $1;`, id)
	if err != nil {
		return err
	}
	_, err = s.PG.Exec(ctx, `DELETE FROM products WHERE id = $1;`, id)
	return err
}

//
// ─── Orders ──────────────────────────────────────────────────────────────────
//

func (s *HybridStore) CreateOrder(ctx context.Context, userID, productID int64, currency string, amount decimal.Decimal) (int64, error) {
	if s.PG == nil {
		return 0, fmt.Errorf("postgres unavailable")
	}
	var id int64
	err := s.PG.QueryRow(ctx, `
		INSERT INTO orders (user_id, product_id, currency, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`, userID, productID, currency, amount.String()).Scan(&id)
	return id, err
}

func (s *HybridStore) AttachInvoice(ctx context.Context, orderID, invoiceID int64) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	tag, err := s.PG.Exec(ctx, `UPDATE orders SET invoice_id = $2 WHERE id = $1;`, orderID, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d not found", orderID)
	}
	return nil
}

// MarkPaid transitions the order for invoiceID to paid. Calling it again for
// an already-paid order is a no-op, not an error.
func (s *HybridStore) MarkPaid(ctx context.Context, invoiceID int64) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	_, err := s.PG.Exec(ctx, `
		UPDATE orders SET status = 'paid' WHERE invoice_id = $1 AND status <> 'paid';
	`, invoiceID)
	return err
}

// MarkExpired transitions a still-pending order to expired. Paid orders are
// never clobbered.
func (s *HybridStore) MarkExpired(ctx context.Context, invoiceID int64) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	_, err := s.PG.Exec(ctx, `
		UPDATE orders SET status = 'expired' WHERE invoice_id = $1 AND status = 'pending';
	`, invoiceID)
	return err
}

func (s *HybridStore) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.queryOrder(ctx, `WHERE id = $1`, id)
}

func (s *HybridStore) GetOrderByInvoice(ctx context.Context, invoiceID int64) (*model.Order, error) {
	return s.queryOrder(ctx, `WHERE invoice_id = $1`, invoiceID)
}

func (s *HybridStore) queryOrder(ctx context.Context, where string, arg any) (*model.Order, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		SELECT id, user_id, product_id, COALESCE(invoice_id, 0), currency, amount::text, status, created_at, delivered_at
		FROM orders `+where+`;`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var o model.Order
	var amount, status string
	if err := rows.Scan(&o.ID, &o.UserID, &o.ProductID, &o.InvoiceID, &o.Currency,
		&amount, &status, &o.CreatedAt, &o.DeliveredAt); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("bad amount for order %d: %w", o.ID, err)
	}
	o.Amount = parsed
	o.Status = model.OrderStatus(status)
	return &o, nil
}

// ClaimDelivery atomically stamps delivered_at. It returns true only for the
// single caller that wins the claim; every later call returns false, which
// is what makes delivery exactly-once.
func (s *HybridStore) ClaimDelivery(ctx context.Context, orderID int64) (bool, error) {
	if s.PG == nil {
		return false, fmt.Errorf("postgres unavailable")
	}
	tag, err := s.PG.Exec(ctx, `
		UPDATE orders SET delivered_at = NOW() WHERE id = $1 AND delivered_at IS NULL;
	`, orderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

//
// ─── Deliverables ────────────────────────────────────────────────────────────
//

func (s *HybridStore) GetDeliverable(ctx context.Context, productID int64) (*model.Deliverable, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		SELECT product_id, kind, file_path, file_name, content, description
		FROM deliverables
		WHERE product_id = $1;
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var d model.Deliverable
	var kind string
	if err := rows.Scan(&d.ProductID, &kind, &d.FilePath, &d.FileName, &d.Content, &d.Description); err != nil {
		return nil, err
	}
	d.Kind = model.DeliverableKind(kind)
	return &d, nil
}

func (s *HybridStore) UpsertDeliverable(ctx context.Context, d model.Deliverable) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO deliverables (product_id, kind, file_path, file_name, content, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			file_path = EXCLUDED.file_path,
			file_name = EXCLUDED.file_name,
			content = EXCLUDED.content,
			description = EXCLUDED.description;
	`, d.ProductID, string(d.Kind), d.FilePath, d.FileName, d.Content, d.Description)
	return err
}

//
// ─── Support tickets ─────────────────────────────────────────────────────────
//

func (s *HybridStore) CreateTicket(ctx context.Context, t model.SupportTicket) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO support_tickets (id, user_id, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5);
	`, t.ID, t.UserID, t.Message, string(t.Status), t.CreatedAt)
	return err
}

func (s *HybridStore) CloseTicket(ctx context.Context, id string) (bool, error) {
	if s.PG == nil {
		return false, fmt.Errorf("postgres unavailable")
	}
	tag, err := s.PG.Exec(ctx, `
		UPDATE support_tickets SET status = 'closed' WHERE id = $1 AND status = 'open';
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

//
// ─── Rate snapshot mirror (Redis) ────────────────────────────────────────────
//

func (s *HybridStore) SaveRateSnapshot(ctx context.Context, snap model.RateSnapshot) error {
	return s.SetJSON(ctx, rateSnapshotKey, snap, 0)
}

func (s *HybridStore) LoadRateSnapshot(ctx context.Context) (*model.RateSnapshot, error) {
	var snap model.RateSnapshot
	if err := s.GetJSON(ctx, rateSnapshotKey, &snap); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

// SetJSON stores a JSON-encoded value in Redis. ttl of zero means no expiry.
func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

// GetJSON fetches and decodes a JSON value from Redis.
func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

//
// ─── Lifecycle ───────────────────────────────────────────────────────────────
//

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	return s.redis.Close()
}
