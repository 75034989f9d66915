// Package store implements the change-detection store: the sole writer
// to persistent entity state, enforcing the hash-gated history
// invariant.
package store

// Schema is the DDL for the four tables the store owns. EnsureSchema
// applies it idempotently at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS brands (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	url TEXT,
	last_update TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sellers (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	url TEXT,
	last_update TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	pk BIGINT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	brand_id BIGINT REFERENCES brands(id),
	seller_id BIGINT NOT NULL REFERENCES sellers(id)
);

CREATE TABLE IF NOT EXISTS product_history (
	id BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products(id),
	price DOUBLE PRECISION NOT NULL,
	member_price DOUBLE PRECISION NOT NULL,
	rating DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_count INTEGER NOT NULL DEFAULT 0,
	question_count INTEGER NOT NULL DEFAULT 0,
	on_sale BOOLEAN NOT NULL DEFAULT FALSE,
	hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_product_history_latest
	ON product_history (product_id, created_at DESC, id DESC);
`
