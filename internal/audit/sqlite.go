package audit

import (
	"context"
	"encoding/json"

	"compliance-gate/pkg/db"
)

// SQLiteStore persists audit entries in the gate's SQLite database.
type SQLiteStore struct {
	DB *db.Database
}

// NewSQLiteStore wraps the database as a durable audit sink.
func NewSQLiteStore(database *db.Database) *SQLiteStore {
	return &SQLiteStore{DB: database}
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	return s.DB.AppendAuditEntry(ctx, db.AuditEntry{
		LogID:        e.LogID,
		Seq:          e.Seq,
		Timestamp:    e.Timestamp,
		StrategyName: e.StrategyName,
		OrderID:      e.OrderID,
		EventType:    e.EventType,
		Details:      string(e.Details),
		Operator:     e.Operator,
	})
}

func (s *SQLiteStore) List(ctx context.Context, strategy string, f Filter) ([]Entry, error) {
	rows, err := s.DB.ListAuditEntries(ctx, strategy, db.AuditFilter{
		OrderID:   f.OrderID,
		EventType: f.EventType,
		Since:     f.Since,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{
			LogID:        r.LogID,
			Seq:          r.Seq,
			Timestamp:    r.Timestamp,
			StrategyName: r.StrategyName,
			OrderID:      r.OrderID,
			EventType:    r.EventType,
			Details:      json.RawMessage(r.Details),
			Operator:     r.Operator,
		})
	}
	return out, nil
}

var _ Store = (*SQLiteStore)(nil)
