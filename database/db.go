package database

import (
	"database/sql"
	"fmt"

	"marketplace-svc/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	color VARCHAR(64) NOT NULL DEFAULT '',
	image_cover TEXT NOT NULL DEFAULT '',
	price DECIMAL(10, 2) NOT NULL DEFAULT 0,
	price_before_discount DECIMAL(10, 2),
	discount_percent DECIMAL(5, 2),
	quantity INTEGER NOT NULL DEFAULT 0,
	sold INTEGER NOT NULL DEFAULT 0,
	sizes JSONB NOT NULL DEFAULT '[]',
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS carts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE,
	items JSONB NOT NULL DEFAULT '[]',
	tax_price DECIMAL(10, 2) NOT NULL DEFAULT 0,
	shipping_price DECIMAL(10, 2) NOT NULL DEFAULT 0,
	total_price DECIMAL(10, 2) NOT NULL DEFAULT 0,
	total_price_after_discount DECIMAL(10, 2),
	coupon JSONB,
	pending_expiry_job_id TEXT NOT NULL DEFAULT '',
	pending_checkout_session_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	items JSONB NOT NULL,
	tax_price DECIMAL(10, 2) NOT NULL DEFAULT 0,
	shipping_price DECIMAL(10, 2) NOT NULL DEFAULT 0,
	total_price DECIMAL(10, 2) NOT NULL DEFAULT 0,
	total_price_after_discount DECIMAL(10, 2),
	coupon JSONB,
	payment_method VARCHAR(32) NOT NULL,
	payment_status VARCHAR(32) NOT NULL,
	order_status VARCHAR(32) NOT NULL,
	phone VARCHAR(32) NOT NULL,
	shipping_address JSONB NOT NULL,
	checkout_session_id TEXT,
	paid_at TIMESTAMP,
	delivered_at TIMESTAMP,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS orders_checkout_session_id_key
	ON orders (checkout_session_id) WHERE checkout_session_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id);

CREATE TABLE IF NOT EXISTS app_settings (
	id INTEGER PRIMARY KEY DEFAULT 1,
	tax_price DECIMAL(10, 2) NOT NULL DEFAULT 0,
	shipping_price DECIMAL(10, 2) NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_addresses (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	country VARCHAR(50) NOT NULL,
	state VARCHAR(50) NOT NULL,
	city VARCHAR(50) NOT NULL,
	street VARCHAR(100) NOT NULL,
	postal_code VARCHAR(10) NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS user_addresses_user_id_idx ON user_addresses (user_id);
`

func InitDB(cfg config.Database, logger *zap.Logger) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("Database connection established")
	return db, nil
}
