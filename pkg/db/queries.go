// Package db provides SQLite persistence for the compliance gate: the
// append-only audit stream, order snapshots, and operator accounts.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// AppendAuditEntry inserts one audit record. Audit rows are never updated
// or deleted; corrections are new entries referencing the original.
func (d *Database) AppendAuditEntry(ctx context.Context, e AuditEntry) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO audit_entries (log_id, seq, ts, strategy_name, order_id, event_type, details, operator)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.LogID, e.Seq, e.Timestamp, e.StrategyName, e.OrderID, e.EventType, e.Details, e.Operator)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// AuditFilter narrows audit reads. Zero values mean "no constraint".
type AuditFilter struct {
	OrderID   string
	EventType string
	Since     time.Time
}

// ListAuditEntries returns the audit stream of one strategy in write order.
func (d *Database) ListAuditEntries(ctx context.Context, strategy string, f AuditFilter) ([]AuditEntry, error) {
	query := `
		SELECT log_id, seq, ts, strategy_name, COALESCE(order_id, ''), event_type, details, COALESCE(operator, '')
		FROM audit_entries
		WHERE strategy_name = ?
	`
	args := []any{strategy}
	if f.OrderID != "" {
		query += " AND order_id = ?"
		args = append(args, f.OrderID)
	}
	if f.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, f.EventType)
	}
	if !f.Since.IsZero() {
		query += " AND ts >= ?"
		args = append(args, f.Since)
	}
	query += " ORDER BY seq ASC"

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.LogID, &e.Seq, &e.Timestamp, &e.StrategyName, &e.OrderID, &e.EventType, &e.Details, &e.Operator); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertGateOrder stores the current snapshot of an order.
func (d *Database) UpsertGateOrder(ctx context.Context, o GateOrder) error {
	var decidedAt any
	if !o.DecidedAt.IsZero() {
		decidedAt = o.DecidedAt
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO gate_orders (
			order_id, strategy_name, stock_code, action, price, target_position,
			state, rule_check_passed, risk_check_passed, force_sell,
			approver, reject_reason, broker_ref, created_at, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			state = excluded.state,
			rule_check_passed = excluded.rule_check_passed,
			risk_check_passed = excluded.risk_check_passed,
			force_sell = excluded.force_sell,
			approver = excluded.approver,
			reject_reason = excluded.reject_reason,
			broker_ref = excluded.broker_ref,
			decided_at = excluded.decided_at
	`,
		o.OrderID, o.StrategyName, o.StockCode, o.Action, o.Price, o.TargetPosition,
		o.State, boolToInt(o.RuleCheckPassed), boolToInt(o.RiskCheckPassed), boolToInt(o.ForceSell),
		o.Approver, o.RejectReason, o.BrokerRef, o.CreatedAt, decidedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert gate order: %w", err)
	}
	return nil
}

// ListGateOrders returns order snapshots for a strategy, newest first.
// state narrows to a single state when non-empty.
func (d *Database) ListGateOrders(ctx context.Context, strategy, state string, limit int) ([]GateOrder, error) {
	query := `
		SELECT order_id, strategy_name, stock_code, action, price, target_position,
		       state, rule_check_passed, risk_check_passed, force_sell,
		       COALESCE(approver, ''), COALESCE(reject_reason, ''), COALESCE(broker_ref, ''),
		       created_at, COALESCE(decided_at, created_at)
		FROM gate_orders
		WHERE strategy_name = ?
	`
	args := []any{strategy}
	if state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query gate orders: %w", err)
	}
	defer rows.Close()

	var out []GateOrder
	for rows.Next() {
		var (
			o                         GateOrder
			rulePass, riskPass, fsell int
		)
		if err := rows.Scan(&o.OrderID, &o.StrategyName, &o.StockCode, &o.Action, &o.Price, &o.TargetPosition,
			&o.State, &rulePass, &riskPass, &fsell,
			&o.Approver, &o.RejectReason, &o.BrokerRef, &o.CreatedAt, &o.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan gate order: %w", err)
		}
		o.RuleCheckPassed = rulePass == 1
		o.RiskCheckPassed = riskPass == 1
		o.ForceSell = fsell == 1
		out = append(out, o)
	}
	return out, rows.Err()
}

// CreateOperator registers a reviewer account.
func (d *Database) CreateOperator(ctx context.Context, op Operator) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO operators (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, op.ID, op.Email, op.PasswordHash, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("create operator: %w", err)
	}
	return nil
}

// GetOperatorByEmail returns the operator with the given email, or nil when
// none exists.
func (d *Database) GetOperatorByEmail(ctx context.Context, email string) (*Operator, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at FROM operators WHERE email = ?
	`, email)

	var op Operator
	if err := row.Scan(&op.ID, &op.Email, &op.PasswordHash, &op.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get operator: %w", err)
	}
	return &op, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
