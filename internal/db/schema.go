package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'clerk' CHECK (role IN ('admin', 'manager', 'clerk')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS assets (
    id         TEXT PRIMARY KEY,
    model      TEXT NOT NULL,
    model_key  TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'on_loan')),
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assets_model_key ON assets(model_key);

CREATE TABLE IF NOT EXISTS model_images (
    model_key TEXT PRIMARY KEY,
    model     TEXT NOT NULL,
    image     BLOB NOT NULL,
    mime      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id          TEXT PRIMARY KEY,
    crew        TEXT NOT NULL,
    contract    TEXT NOT NULL,
    site        TEXT NOT NULL,
    pickup_date TEXT NOT NULL DEFAULT '',
    loan_days   INTEGER NOT NULL DEFAULT 0 CHECK (loan_days >= 0),
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_pickup ON orders(pickup_date, created_at);

CREATE TABLE IF NOT EXISTS order_items (
    order_id TEXT NOT NULL REFERENCES orders(id),
    position INTEGER NOT NULL,
    model    TEXT NOT NULL,
    quantity INTEGER NOT NULL CHECK (quantity >= 0),
    PRIMARY KEY (order_id, position)
);

-- One row per piece and line item. A piece may be active in several orders
-- when imported history overlaps; the next claim on it reconciles them.
CREATE TABLE IF NOT EXISTS order_item_assets (
    order_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    asset_id TEXT NOT NULL,
    state    TEXT NOT NULL CHECK (state IN ('active', 'returned')),
    seq      INTEGER NOT NULL,
    PRIMARY KEY (order_id, position, asset_id),
    FOREIGN KEY (order_id, position) REFERENCES order_items(order_id, position)
);

CREATE INDEX IF NOT EXISTS idx_order_item_assets_asset
    ON order_item_assets(asset_id, state);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
