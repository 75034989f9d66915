package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketwatch/crawler/internal/contenthash"
	"github.com/marketwatch/crawler/internal/market"
)

// PostgresConfig controls the Postgres connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres is the pgx-backed change-detection store.
type Postgres struct {
	pool  pgxQuerier
	clock market.Clock

	// appendLocks serializes history appends per product so the
	// read-latest-then-append sequence cannot interleave.
	appendLocks sync.Map
}

// NewPostgres connects a pool and returns the store.
func NewPostgres(ctx context.Context, cfg PostgresConfig, clock market.Clock) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool, clock: clock}, nil
}

// NewPostgresWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresWithPool(pool pgxQuerier, clock market.Clock) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Postgres{pool: pool, clock: clock}, nil
}

// EnsureSchema applies the DDL idempotently.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const upsertBrandSQL = `
INSERT INTO brands (name, url, last_update)
VALUES ($1, NULLIF($2, ''), $3)
ON CONFLICT (name) DO UPDATE SET
	url = COALESCE(NULLIF(EXCLUDED.url, ''), brands.url),
	last_update = CASE
		WHEN NULLIF(EXCLUDED.url, '') IS NOT NULL
			AND NULLIF(EXCLUDED.url, '') IS DISTINCT FROM brands.url
		THEN EXCLUDED.last_update
		ELSE brands.last_update
	END
RETURNING id`

// UpsertBrand gets or creates a brand by name. A differing non-empty
// observed URL corrects the stored one and bumps last_update.
func (s *Postgres) UpsertBrand(ctx context.Context, name, url string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, upsertBrandSQL, name, url, s.clock.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert brand %q: %w", name, err)
	}
	return id, nil
}

const upsertSellerSQL = `
INSERT INTO sellers (name, url, last_update)
VALUES ($1, NULLIF($2, ''), $3)
ON CONFLICT (name) DO UPDATE SET
	url = COALESCE(NULLIF(EXCLUDED.url, ''), sellers.url),
	last_update = CASE
		WHEN NULLIF(EXCLUDED.url, '') IS NOT NULL
			AND NULLIF(EXCLUDED.url, '') IS DISTINCT FROM sellers.url
		THEN EXCLUDED.last_update
		ELSE sellers.last_update
	END
RETURNING id`

// UpsertSeller is symmetric to UpsertBrand.
func (s *Postgres) UpsertSeller(ctx context.Context, name, url string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, upsertSellerSQL, name, url, s.clock.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert seller %q: %w", name, err)
	}
	return id, nil
}

// UpsertProduct gets or creates a product by marketplace pk. Later
// sightings never correct name, url, brand or seller; drift shows up
// through history snapshots instead.
func (s *Postgres) UpsertProduct(ctx context.Context, pk int64, name, url string, brandID *int64, sellerID int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO products (pk, name, url, brand_id, seller_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (pk) DO NOTHING
RETURNING id`, pk, name, url, brandID, sellerID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("insert product pk=%d: %w", pk, err)
	}
	err = s.pool.QueryRow(ctx, `SELECT id FROM products WHERE pk = $1`, pk).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("select product pk=%d: %w", pk, err)
	}
	return id, nil
}

// RecordObservation appends a history entry only when the observation's
// content hash differs from the latest stored entry. A nil entry with
// nil error means nothing changed.
func (s *Postgres) RecordObservation(ctx context.Context, productID int64, obs market.Observation) (*market.HistoryEntry, error) {
	muIface, _ := s.appendLocks.LoadOrStore(productID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	hash := contenthash.Observation(obs)

	var lastHash string
	err := s.pool.QueryRow(ctx, `
SELECT hash FROM product_history
WHERE product_id = $1
ORDER BY created_at DESC, id DESC
LIMIT 1`, productID).Scan(&lastHash)
	switch {
	case err == nil:
		if lastHash == hash {
			return nil, nil
		}
	case errors.Is(err, pgx.ErrNoRows):
		// First observation for this product.
	default:
		return nil, fmt.Errorf("latest history for product %d: %w", productID, err)
	}

	entry := market.HistoryEntry{
		ProductID:     productID,
		Price:         obs.Price,
		MemberPrice:   obs.MemberPrice,
		Rating:        obs.Rating,
		ReviewCount:   obs.ReviewCount,
		QuestionCount: obs.QuestionCount,
		OnSale:        obs.OnSale,
		Hash:          hash,
		CreatedAt:     s.clock.Now(),
	}
	err = s.pool.QueryRow(ctx, `
INSERT INTO product_history
	(product_id, price, member_price, rating, review_count, question_count, on_sale, hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`,
		entry.ProductID, entry.Price, entry.MemberPrice, entry.Rating,
		entry.ReviewCount, entry.QuestionCount, entry.OnSale, entry.Hash, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return nil, fmt.Errorf("append history for product %d: %w", productID, err)
	}
	return &entry, nil
}

func (s *Postgres) brandRow(ctx context.Context, query string, arg any) (*market.Brand, error) {
	var b market.Brand
	var url *string
	err := s.pool.QueryRow(ctx, query, arg).Scan(&b.ID, &b.Name, &url, &b.LastUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select brand: %w", err)
	}
	if url != nil {
		b.URL = *url
	}
	return &b, nil
}

// BrandByName looks a brand up by its natural key.
func (s *Postgres) BrandByName(ctx context.Context, name string) (*market.Brand, error) {
	return s.brandRow(ctx, `SELECT id, name, url, last_update FROM brands WHERE name = $1`, name)
}

// BrandByURL looks a brand up by its page URL.
func (s *Postgres) BrandByURL(ctx context.Context, url string) (*market.Brand, error) {
	return s.brandRow(ctx, `SELECT id, name, url, last_update FROM brands WHERE url = $1`, url)
}

func (s *Postgres) sellerRow(ctx context.Context, query string, arg any) (*market.Seller, error) {
	var sl market.Seller
	var url *string
	err := s.pool.QueryRow(ctx, query, arg).Scan(&sl.ID, &sl.Name, &url, &sl.LastUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select seller: %w", err)
	}
	if url != nil {
		sl.URL = *url
	}
	return &sl, nil
}

// SellerByName looks a seller up by its natural key.
func (s *Postgres) SellerByName(ctx context.Context, name string) (*market.Seller, error) {
	return s.sellerRow(ctx, `SELECT id, name, url, last_update FROM sellers WHERE name = $1`, name)
}

// SellerByURL looks a seller up by its page URL.
func (s *Postgres) SellerByURL(ctx context.Context, url string) (*market.Seller, error) {
	return s.sellerRow(ctx, `SELECT id, name, url, last_update FROM sellers WHERE url = $1`, url)
}

// ProductByPK looks a product up by its marketplace primary key.
func (s *Postgres) ProductByPK(ctx context.Context, pk int64) (*market.Product, error) {
	var p market.Product
	err := s.pool.QueryRow(ctx, `
SELECT id, pk, name, url, brand_id, seller_id FROM products WHERE pk = $1`, pk).
		Scan(&p.ID, &p.PK, &p.Name, &p.URL, &p.BrandID, &p.SellerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select product pk=%d: %w", pk, err)
	}
	return &p, nil
}

// LatestHistory returns the most recent history entry for a product,
// or nil when none exists.
func (s *Postgres) LatestHistory(ctx context.Context, productID int64) (*market.HistoryEntry, error) {
	var e market.HistoryEntry
	err := s.pool.QueryRow(ctx, `
SELECT id, product_id, price, member_price, rating, review_count, question_count, on_sale, hash, created_at
FROM product_history
WHERE product_id = $1
ORDER BY created_at DESC, id DESC
LIMIT 1`, productID).
		Scan(&e.ID, &e.ProductID, &e.Price, &e.MemberPrice, &e.Rating,
			&e.ReviewCount, &e.QuestionCount, &e.OnSale, &e.Hash, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest history for product %d: %w", productID, err)
	}
	return &e, nil
}

// HistoryByProduct returns all history entries for a product, oldest
// first.
func (s *Postgres) HistoryByProduct(ctx context.Context, productID int64) ([]market.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, product_id, price, member_price, rating, review_count, question_count, on_sale, hash, created_at
FROM product_history
WHERE product_id = $1
ORDER BY created_at ASC, id ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("history for product %d: %w", productID, err)
	}
	defer rows.Close()

	var entries []market.HistoryEntry
	for rows.Next() {
		var e market.HistoryEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Price, &e.MemberPrice, &e.Rating,
			&e.ReviewCount, &e.QuestionCount, &e.OnSale, &e.Hash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}
