package audit

import (
	"context"
	"encoding/json"
	"testing"

	"compliance-gate/pkg/db"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	ctx := context.Background()
	if err := database.ApplyMigrations(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := NewSQLiteStore(database)
	l, err := NewLog(ctx, "s1", store)
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}

	for i := 0; i < 4; i++ {
		e := Entry{
			OrderID:   "o1",
			EventType: EventRuleCheckResult,
			Details:   json.RawMessage(`{"passed":true}`),
		}
		if _, err := l.Append(ctx, e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	// A fresh log over the same database recovers the full stream.
	l2, err := NewLog(ctx, "s1", store)
	if err != nil {
		t.Fatalf("NewLog (recovery): %v", err)
	}
	entries := l2.List(Filter{OrderID: "o1"})
	if len(entries) != 4 {
		t.Fatalf("expected 4 recovered entries, got %d", len(entries))
	}
	if entries[3].Seq != 4 {
		t.Fatalf("expected last seq 4, got %d", entries[3].Seq)
	}

	var d struct {
		Passed bool `json:"passed"`
	}
	if err := json.Unmarshal(entries[0].Details, &d); err != nil || !d.Passed {
		t.Fatalf("details did not survive the round trip: %v", err)
	}
}
