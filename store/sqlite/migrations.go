package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the DMC store (SQLite).
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
    amount INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (owner, symbol)
);

CREATE TABLE IF NOT EXISTS dmc_locked (
    owner     TEXT NOT NULL,
    symbol    TEXT NOT NULL,
    unlock_at TEXT NOT NULL,
    amount    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (owner, symbol, unlock_at)
);

CREATE TABLE IF NOT EXISTS dmc_supply (
    symbol TEXT PRIMARY KEY,
    supply INTEGER NOT NULL DEFAULT 0
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
    value      INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dmc_meta (
    key   TEXT PRIMARY KEY,
    value BLOB NOT NULL
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
    price      INTEGER NOT NULL,
    unmatched  INTEGER NOT NULL DEFAULT 0,
    matched    INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
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
    price                  INTEGER NOT NULL DEFAULT 0,
    user_pledge            INTEGER NOT NULL DEFAULT 0,
    lock_pledge            INTEGER NOT NULL DEFAULT 0,
    settlement_pledge      INTEGER NOT NULL DEFAULT 0,
    miner_pledge           INTEGER NOT NULL DEFAULT 0,
    state                  TEXT NOT NULL,
    deliver_start_date     TEXT,
    latest_settlement_date TEXT,
    claim_date             TEXT,
    end_date               TEXT,
    created_at             TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at             TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_dmc_orders_consumer ON dmc_orders (consumer, id);
CREATE INDEX IF NOT EXISTS idx_dmc_orders_provider ON dmc_orders (provider, id);
CREATE INDEX IF NOT EXISTS idx_dmc_orders_active ON dmc_orders (id) WHERE state NOT IN ('end', 'cancel');

CREATE TABLE IF NOT EXISTS dmc_challenges (
    order_id        TEXT PRIMARY KEY,
    pre_merkle_root TEXT NOT NULL DEFAULT '',
    pre_block_count INTEGER NOT NULL DEFAULT 0,
    pre_submitter   TEXT NOT NULL DEFAULT '',
    merkle_root     TEXT NOT NULL DEFAULT '',
    block_count     INTEGER NOT NULL DEFAULT 0,
    data_id         INTEGER NOT NULL DEFAULT 0,
    hash_data       TEXT NOT NULL DEFAULT '',
    nonce           TEXT NOT NULL DEFAULT '',
    challenge_times INTEGER NOT NULL DEFAULT 0,
    state           TEXT NOT NULL,
    challenge_date  TEXT,
    user_lock       INTEGER NOT NULL DEFAULT 0,
    miner_pay       INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
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
    total_staked INTEGER NOT NULL DEFAULT 0,
    total_weight INTEGER NOT NULL DEFAULT 0,
    miner_rate   INTEGER NOT NULL DEFAULT 0,
    current_rate INTEGER NOT NULL DEFAULT 0,
    minted       INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_dmc_makers_rate ON dmc_makers (current_rate, provider);

CREATE TABLE IF NOT EXISTS dmc_partners (
    provider   TEXT NOT NULL,
    partner    TEXT NOT NULL,
    weight     INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
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
