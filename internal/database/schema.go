package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds every table the tracker persists to, in dependency order.
// All statements are idempotent so Migrate can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS owners (
		owner_id BIGINT PRIMARY KEY,
		owner_name TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT timezone('UTC', now()),
		notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		wallet_threshold NUMERIC(17, 2) NOT NULL DEFAULT 0,
		is_backfilling BOOLEAN NOT NULL DEFAULT FALSE,
		backfill_before_id BIGINT
	)`,

	`CREATE TABLE IF NOT EXISTS response_cache (
		cache_key TEXT PRIMARY KEY,
		payload BYTEA NOT NULL,
		etag TEXT,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		headers JSONB
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		type_id BIGINT NOT NULL,
		is_buy BOOLEAN NOT NULL,
		is_personal BOOLEAN NOT NULL,
		quantity BIGINT NOT NULL,
		unit_price NUMERIC(17, 2) NOT NULL,
		client_id BIGINT NOT NULL,
		location_id BIGINT NOT NULL,
		journal_ref_id BIGINT NOT NULL,
		date TIMESTAMP WITH TIME ZONE NOT NULL,
		sale_processed BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (transaction_id, owner_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_owner_date ON transactions (owner_id, date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_unprocessed_sales ON transactions (owner_id, date)
		WHERE NOT sale_processed AND NOT is_buy AND is_personal`,

	`CREATE TABLE IF NOT EXISTS wallet_journal (
		entry_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		amount NUMERIC(17, 2),
		ref_type TEXT NOT NULL,
		context_id BIGINT,
		date TIMESTAMP WITH TIME ZONE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (entry_id, owner_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_journal_owner_date ON wallet_journal (owner_id, date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_journal_context ON wallet_journal (owner_id, context_id)`,

	`CREATE TABLE IF NOT EXISTS purchase_lots (
		lot_id BIGSERIAL PRIMARY KEY,
		transaction_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		type_id BIGINT NOT NULL,
		quantity BIGINT NOT NULL,
		unit_cost NUMERIC(17, 2) NOT NULL,
		purchased_at TIMESTAMP WITH TIME ZONE NOT NULL,
		UNIQUE (transaction_id, owner_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_purchase_lots_owner_type ON purchase_lots (owner_id, type_id, purchased_at)`,

	`CREATE TABLE IF NOT EXISTS open_orders (
		order_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		type_id BIGINT NOT NULL,
		is_buy_order BOOLEAN NOT NULL,
		price NUMERIC(17, 2) NOT NULL,
		volume_remain BIGINT NOT NULL,
		volume_total BIGINT NOT NULL,
		location_id BIGINT NOT NULL,
		issued TIMESTAMP WITH TIME ZONE NOT NULL,
		order_data JSONB,
		PRIMARY KEY (order_id, owner_id)
	)`,

	`CREATE TABLE IF NOT EXISTS processed_orders (
		order_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		PRIMARY KEY (order_id, owner_id)
	)`,

	`CREATE TABLE IF NOT EXISTS undercut_statuses (
		order_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		is_undercut BOOLEAN NOT NULL,
		competitor_price NUMERIC(17, 2),
		competitor_location_id BIGINT,
		competitor_volume BIGINT,
		PRIMARY KEY (order_id, owner_id)
	)`,

	`CREATE TABLE IF NOT EXISTS contracts (
		contract_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		issuer_id BIGINT NOT NULL,
		assignee_id BIGINT,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		date_issued TIMESTAMP WITH TIME ZONE NOT NULL,
		date_expired TIMESTAMP WITH TIME ZONE NOT NULL,
		start_location_id BIGINT,
		for_corporation BOOLEAN NOT NULL,
		contract_data JSONB,
		PRIMARY KEY (contract_id, owner_id)
	)`,

	`CREATE TABLE IF NOT EXISTS processed_contracts (
		contract_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		PRIMARY KEY (contract_id, owner_id)
	)`,

	`CREATE TABLE IF NOT EXISTS name_cache (
		item_id BIGINT PRIMARY KEY,
		name TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS location_cache (
		location_id BIGINT PRIMARY KEY,
		system_id BIGINT,
		region_id BIGINT
	)`,
}

// Migrate creates all tables and indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
