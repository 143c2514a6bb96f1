package store

import (
	"context"
	"fmt"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            UUID PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	account_type  TEXT NOT NULL,
	balance       BIGINT NOT NULL CHECK (balance >= 0),
	interest_rate DOUBLE PRECISION,
	version       BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_accounts_owner_id ON accounts (owner_id);

CREATE TABLE IF NOT EXISTS categories (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS transactions (
	id              UUID PRIMARY KEY,
	from_account_id UUID NOT NULL REFERENCES accounts (id),
	to_account_id   UUID NOT NULL REFERENCES accounts (id),
	owner_id        TEXT NOT NULL,
	amount          BIGINT NOT NULL CHECK (amount > 0),
	category_id     TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_from_account ON transactions (from_account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_to_account ON transactions (to_account_id);

CREATE TABLE IF NOT EXISTS scheduled_payments (
	id                UUID PRIMARY KEY,
	owner_id          TEXT NOT NULL,
	from_account_id   UUID NOT NULL,
	to_account_id     UUID NOT NULL,
	amount            BIGINT NOT NULL CHECK (amount > 0),
	schedule          TEXT NOT NULL,
	next_payment_date TIMESTAMPTZ NOT NULL,
	category_id       TEXT,
	claim_token       UUID,
	claimed_until     TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_scheduled_payments_due ON scheduled_payments (next_payment_date);

CREATE TABLE IF NOT EXISTS recurring_payments (
	id                UUID PRIMARY KEY,
	owner_id          TEXT NOT NULL,
	amount            BIGINT NOT NULL CHECK (amount > 0),
	from_account_id   UUID NOT NULL,
	to_account_id     UUID NOT NULL,
	payment_interval  TEXT NOT NULL,
	category_id       TEXT NOT NULL,
	next_payment_date TIMESTAMPTZ NOT NULL,
	status            TEXT NOT NULL DEFAULT 'active',
	claim_token       UUID,
	claimed_until     TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_recurring_payments_due ON recurring_payments (status, next_payment_date);

CREATE TABLE IF NOT EXISTS activity_logs (
	id         UUID PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	action     TEXT NOT NULL,
	details    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_logs_owner ON activity_logs (owner_id, created_at DESC);
`

// Migrate creates the tables if they do not exist and seeds the default category.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO categories (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		domain.DefaultCategoryID, domain.DefaultCategoryName,
	)
	if err != nil {
		return fmt.Errorf("failed to seed default category: %w", err)
	}
	return nil
}
