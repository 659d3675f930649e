package audit

import (
	"encoding/json"
	"time"
)

// Event types recorded in the audit stream. The check-result entries double
// as the write-ahead record for the state transition they decide: the entry
// is appended first, the in-memory state changes after.
const (
	EventSignalGenerated  = "signal_generated"
	EventRuleCheckResult  = "rule_check_result"
	EventRiskCheckResult  = "risk_check_result"
	EventApprovalDecision = "approval_decision"
	EventOrderApproved    = "order_approved"
	EventOrderRejected    = "order_rejected"
	EventOrderCancelled   = "order_cancelled"
	EventOrderExecuted    = "order_executed"
	EventExecutionFailed  = "execution_failed"
	EventTradingHalted    = "trading_halted"
	EventHaltCleared      = "halt_cleared"
	EventRulesReloaded    = "rules_reloaded"
)

// Entry is one immutable audit record. Entries are appended in write order
// per strategy; Seq is a per-strategy counter that breaks timestamp ties so
// the stream has a total order.
type Entry struct {
	LogID        string          `json:"log_id"`
	Seq          int64           `json:"seq"`
	Timestamp    time.Time       `json:"timestamp"`
	StrategyName string          `json:"strategy_name"`
	OrderID      string          `json:"order_id,omitempty"`
	EventType    string          `json:"event_type"`
	Details      json.RawMessage `json:"details"`
	Operator     string          `json:"operator,omitempty"`
}

// Filter narrows audit reads. Zero values mean "no constraint".
type Filter struct {
	OrderID   string
	EventType string
	Since     time.Time
}

func (f Filter) matches(e Entry) bool {
	if f.OrderID != "" && e.OrderID != f.OrderID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
