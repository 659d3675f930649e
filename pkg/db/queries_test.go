package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func TestAppendAndListAuditEntries(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		e := AuditEntry{
			LogID:        uuid.NewString(),
			Seq:          int64(i),
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			StrategyName: "s1",
			OrderID:      "o1",
			EventType:    "rule_check_result",
			Details:      `{"passed":true}`,
		}
		if i == 3 {
			e.OrderID = "o2"
			e.EventType = "signal_generated"
		}
		if err := d.AppendAuditEntry(ctx, e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	all, err := d.ListAuditEntries(ctx, "s1", AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Seq <= all[i-1].Seq {
			t.Fatal("entries not in seq order")
		}
	}

	byOrder, err := d.ListAuditEntries(ctx, "s1", AuditFilter{OrderID: "o1"})
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	if len(byOrder) != 2 {
		t.Fatalf("expected 2 entries for o1, got %d", len(byOrder))
	}

	byType, err := d.ListAuditEntries(ctx, "s1", AuditFilter{EventType: "signal_generated"})
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if len(byType) != 1 {
		t.Fatalf("expected 1 signal entry, got %d", len(byType))
	}

	since, err := d.ListAuditEntries(ctx, "s1", AuditFilter{Since: base.Add(2 * time.Second)})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("expected 2 entries since cutoff, got %d", len(since))
	}

	// Other strategies see nothing.
	other, err := d.ListAuditEntries(ctx, "s2", AuditFilter{})
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(other) != 0 {
		t.Fatal("audit streams must be isolated per strategy")
	}
}

func TestUpsertGateOrder(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	o := GateOrder{
		OrderID:      "s1-20260302100000-0001",
		StrategyName: "s1",
		StockCode:    "600519",
		Action:       "BUY",
		Price:        1500,
		State:        "PENDING_APPROVAL",
		CreatedAt:    now,
	}
	if err := d.UpsertGateOrder(ctx, o); err != nil {
		t.Fatalf("insert: %v", err)
	}

	o.State = "EXECUTED"
	o.RuleCheckPassed = true
	o.RiskCheckPassed = true
	o.Approver = "reviewer@example.com"
	o.BrokerRef = "ref-1"
	o.DecidedAt = now.Add(time.Minute)
	if err := d.UpsertGateOrder(ctx, o); err != nil {
		t.Fatalf("update: %v", err)
	}

	rows, err := d.ListGateOrders(ctx, "s1", "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", len(rows))
	}
	got := rows[0]
	if got.State != "EXECUTED" || !got.RuleCheckPassed || got.Approver != "reviewer@example.com" {
		t.Fatalf("upsert did not apply: %+v", got)
	}

	if rows, err = d.ListGateOrders(ctx, "s1", "PENDING_APPROVAL", 10); err != nil || len(rows) != 0 {
		t.Fatalf("state filter failed: %v, %d rows", err, len(rows))
	}
}

func TestOperatorAccounts(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	op := Operator{
		ID:           uuid.NewString(),
		Email:        "reviewer@example.com",
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	}
	if err := d.CreateOperator(ctx, op); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := op
	dup.ID = uuid.NewString()
	if err := d.CreateOperator(ctx, dup); err == nil {
		t.Fatal("duplicate email must fail")
	}

	got, err := d.GetOperatorByEmail(ctx, "reviewer@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ID != op.ID {
		t.Fatalf("unexpected operator: %+v", got)
	}

	missing, err := d.GetOperatorByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for unknown email")
	}
}
