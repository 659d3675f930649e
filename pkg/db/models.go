package db

import "time"

// AuditEntry is the persisted form of one audit log record. The details
// column holds a JSON payload with stable field order so the stream stays
// diff-able across versions.
type AuditEntry struct {
	LogID        string
	Seq          int64
	Timestamp    time.Time
	StrategyName string
	OrderID      string
	EventType    string
	Details      string
	Operator     string
}

// GateOrder is the persisted snapshot of an order. It is a cache: the
// authoritative history is the audit stream, from which order states can be
// replayed.
type GateOrder struct {
	OrderID         string
	StrategyName    string
	StockCode       string
	Action          string
	Price           float64
	TargetPosition  float64
	State           string
	RuleCheckPassed bool
	RiskCheckPassed bool
	ForceSell       bool
	Approver        string
	RejectReason    string
	BrokerRef       string
	CreatedAt       time.Time
	DecidedAt       time.Time
}

// Operator is a human reviewer allowed to approve or reject pending orders.
type Operator struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
