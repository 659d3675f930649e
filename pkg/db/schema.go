package db

import (
	"context"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS audit_entries (
    log_id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    ts DATETIME NOT NULL,
    strategy_name TEXT NOT NULL,
    order_id TEXT,
    event_type TEXT NOT NULL,
    details TEXT NOT NULL,
    operator TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_strategy_seq
    ON audit_entries(strategy_name, seq);

CREATE TABLE IF NOT EXISTS gate_orders (
    order_id TEXT PRIMARY KEY,
    strategy_name TEXT NOT NULL,
    stock_code TEXT NOT NULL,
    action TEXT NOT NULL,
    price REAL NOT NULL,
    target_position REAL DEFAULT 0,
    state TEXT NOT NULL,
    rule_check_passed INTEGER DEFAULT 0,
    risk_check_passed INTEGER DEFAULT 0,
    force_sell INTEGER DEFAULT 0,
    approver TEXT,
    reject_reason TEXT,
    broker_ref TEXT,
    created_at DATETIME NOT NULL,
    decided_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_gate_orders_strategy
    ON gate_orders(strategy_name, created_at);

CREATE TABLE IF NOT EXISTS operators (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// ApplyMigrations creates the gate's tables when they do not exist yet.
func (d *Database) ApplyMigrations(ctx context.Context) error {
	if _, err := d.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
