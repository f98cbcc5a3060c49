package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the DMC store.
var Migrations = migrate.NewGroup("dmc")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_dmc_accounts",
			Version: "20240601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dmc_balances (
    owner  TEXT NOT NULL,
    symbol TEXT NOT NULL,
    amount BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (owner, symbol)
);

CREATE TABLE IF NOT EXISTS dmc_locked (
    owner     TEXT NOT NULL,
    symbol    TEXT NOT NULL,
    unlock_at TIMESTAMPTZ NOT NULL,
    amount    BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (owner, symbol, unlock_at)
);

CREATE TABLE IF NOT EXISTS dmc_supply (
    symbol TEXT PRIMARY KEY,
    supply BIGINT NOT NULL DEFAULT 0
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS dmc_supply;
DROP TABLE IF EXISTS dmc_locked;
DROP TABLE IF EXISTS dmc_balances;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dmc_config",
			Version: "20240601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dmc_config (
    key        TEXT PRIMARY KEY,
    value      BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS dmc_meta (
    key   TEXT PRIMARY KEY,
    value BYTEA NOT NULL
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS dmc_meta;
DROP TABLE IF EXISTS dmc_config;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dmc_bills",
			Version: "20240601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dmc_bills (
    id         TEXT PRIMARY KEY,
    provider   TEXT NOT NULL,
    price      BIGINT NOT NULL,
    unmatched  BIGINT NOT NULL DEFAULT 0,
    matched    BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dmc_bills_provider ON dmc_bills (provider, created_at);
CREATE INDEX IF NOT EXISTS idx_dmc_bills_price ON dmc_bills (price, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dmc_bills`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dmc_orders",
			Version: "20240601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dmc_orders (
    id                     TEXT PRIMARY KEY,
    consumer               TEXT NOT NULL,
    provider               TEXT NOT NULL,
    bill_id                TEXT NOT NULL,
    price                  BIGINT NOT NULL DEFAULT 0,
    user_pledge            BIGINT NOT NULL DEFAULT 0,
    lock_pledge            BIGINT NOT NULL DEFAULT 0,
    settlement_pledge      BIGINT NOT NULL DEFAULT 0,
    miner_pledge           BIGINT NOT NULL DEFAULT 0,
    state                  TEXT NOT NULL,
    deliver_start_date     TIMESTAMPTZ,
    latest_settlement_date TIMESTAMPTZ,
    claim_date             TIMESTAMPTZ,
    end_date               TIMESTAMPTZ,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dmc_orders_consumer ON dmc_orders (consumer, id);
CREATE INDEX IF NOT EXISTS idx_dmc_orders_provider ON dmc_orders (provider, id);
CREATE INDEX IF NOT EXISTS idx_dmc_orders_active ON dmc_orders (id) WHERE state NOT IN ('end', 'cancel');

CREATE TABLE IF NOT EXISTS dmc_challenges (
    order_id        TEXT PRIMARY KEY,
    pre_merkle_root TEXT NOT NULL DEFAULT '',
    pre_block_count BIGINT NOT NULL DEFAULT 0,
    pre_submitter   TEXT NOT NULL DEFAULT '',
    merkle_root     TEXT NOT NULL DEFAULT '',
    block_count     BIGINT NOT NULL DEFAULT 0,
    data_id         BIGINT NOT NULL DEFAULT 0,
    hash_data       TEXT NOT NULL DEFAULT '',
    nonce           TEXT NOT NULL DEFAULT '',
    challenge_times BIGINT NOT NULL DEFAULT 0,
    state           TEXT NOT NULL,
    challenge_date  TIMESTAMPTZ,
    user_lock       BIGINT NOT NULL DEFAULT 0,
    miner_pay       BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS dmc_challenges;
DROP TABLE IF EXISTS dmc_orders;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dmc_makers",
			Version: "20240601000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dmc_makers (
    provider     TEXT PRIMARY KEY,
    total_staked BIGINT NOT NULL DEFAULT 0,
    total_weight BIGINT NOT NULL DEFAULT 0,
    miner_rate   BIGINT NOT NULL DEFAULT 0,
    current_rate BIGINT NOT NULL DEFAULT 0,
    minted       BIGINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dmc_makers_rate ON dmc_makers (current_rate, provider);

CREATE TABLE IF NOT EXISTS dmc_partners (
    provider   TEXT NOT NULL,
    partner    TEXT NOT NULL,
    weight     BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (provider, partner)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS dmc_partners;
DROP TABLE IF EXISTS dmc_makers;
`)
				return err
			},
		},
	)
}
