package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the licensor store (SQLite).
var Migrations = migrate.NewGroup("licensor")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_licensor_identities",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS licensor_identities (
    id           TEXT PRIMARY KEY,
    email        TEXT NOT NULL,
    last_seen_at TEXT NOT NULL DEFAULT (datetime('now')),
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_licensor_identities_email ON licensor_identities (email);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS licensor_identities`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_licensor_licenses",
			Version: "20250601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS licensor_licenses (
    id                     TEXT PRIMARY KEY,
    license_key            TEXT NOT NULL,
    plan                   TEXT NOT NULL DEFAULT 'free',
    service                TEXT NOT NULL DEFAULT '',
    token_limit            INTEGER NOT NULL DEFAULT 0,
    tokens_remaining       INTEGER NOT NULL DEFAULT 0,
    auto_attach_status     TEXT NOT NULL DEFAULT 'manual',
    owner_kind             TEXT NOT NULL DEFAULT '',
    owner_ref              TEXT NOT NULL DEFAULT '',
    email                  TEXT NOT NULL DEFAULT '',
    site_url               TEXT NOT NULL DEFAULT '',
    site_hash              TEXT NOT NULL DEFAULT '',
    install_id             TEXT NOT NULL DEFAULT '',
    stripe_customer_id     TEXT NOT NULL DEFAULT '',
    stripe_subscription_id TEXT NOT NULL DEFAULT '',
    checkout_session_id    TEXT NOT NULL DEFAULT '',
    created_at             TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at             TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_licensor_licenses_key ON licensor_licenses (license_key);
CREATE INDEX IF NOT EXISTS idx_licensor_licenses_owner ON licensor_licenses (owner_kind, owner_ref, service);
CREATE INDEX IF NOT EXISTS idx_licensor_licenses_stripe_sub ON licensor_licenses (stripe_subscription_id) WHERE stripe_subscription_id != '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_licensor_licenses_checkout ON licensor_licenses (checkout_session_id) WHERE checkout_session_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS licensor_licenses`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_licensor_organizations",
			Version: "20250601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS licensor_organizations (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL DEFAULT '',
    plan             TEXT NOT NULL DEFAULT 'free',
    service          TEXT NOT NULL DEFAULT '',
    max_sites        INTEGER NOT NULL DEFAULT 1,
    tokens_remaining INTEGER NOT NULL DEFAULT 0,
    license_key      TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS licensor_members (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL REFERENCES licensor_organizations (id) ON DELETE CASCADE,
    user_id         TEXT NOT NULL,
    role            TEXT NOT NULL DEFAULT 'member',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_licensor_members_org_user ON licensor_members (organization_id, user_id);
CREATE INDEX IF NOT EXISTS idx_licensor_members_user ON licensor_members (user_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS licensor_members;
DROP TABLE IF EXISTS licensor_organizations;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_licensor_sites",
			Version: "20250601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS licensor_sites (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    site_hash       TEXT NOT NULL,
    install_id      TEXT NOT NULL DEFAULT '',
    site_url        TEXT NOT NULL DEFAULT '',
    is_active       INTEGER NOT NULL DEFAULT 1,
    first_seen      TEXT NOT NULL DEFAULT (datetime('now')),
    last_seen       TEXT NOT NULL DEFAULT (datetime('now')),
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_licensor_sites_hash ON licensor_sites (site_hash);
CREATE INDEX IF NOT EXISTS idx_licensor_sites_install ON licensor_sites (install_id) WHERE install_id != '';
CREATE INDEX IF NOT EXISTS idx_licensor_sites_org_active ON licensor_sites (organization_id, is_active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS licensor_sites`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_licensor_credit_entries",
			Version: "20250601000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS licensor_credit_entries (
    id               TEXT PRIMARY KEY,
    identity_id      TEXT NOT NULL,
    seq              INTEGER NOT NULL,
    amount           INTEGER NOT NULL,
    transaction_type TEXT NOT NULL,
    idempotency_key  TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_licensor_credits_seq ON licensor_credit_entries (identity_id, seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_licensor_credits_idempotency ON licensor_credit_entries (identity_id, transaction_type, idempotency_key) WHERE idempotency_key != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS licensor_credit_entries`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_licensor_subscriptions",
			Version: "20250601000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS licensor_subscriptions (
    id                       TEXT PRIMARY KEY,
    identity_id              TEXT NOT NULL,
    service                  TEXT NOT NULL DEFAULT '',
    plan                     TEXT NOT NULL DEFAULT 'free',
    status                   TEXT NOT NULL DEFAULT 'active',
    provider_customer_id     TEXT NOT NULL DEFAULT '',
    provider_subscription_id TEXT NOT NULL DEFAULT '',
    current_period_end       TEXT,
    canceled_at              TEXT,
    created_at               TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at               TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_licensor_subs_identity ON licensor_subscriptions (identity_id, updated_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_licensor_subs_provider ON licensor_subscriptions (provider_subscription_id) WHERE provider_subscription_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS licensor_subscriptions`)
				return err
			},
		},
	)
}
