package gate

import (
	"errors"
	"time"

	"compliance-gate/internal/market"
	"compliance-gate/internal/rules"
)

// State of an order inside the gate.
type State string

const (
	StateCreated         State = "CREATED"
	StateRuleChecked     State = "RULE_CHECKED"
	StateRiskChecked     State = "RISK_CHECKED"
	StatePendingApproval State = "PENDING_APPROVAL"
	StateApproved        State = "APPROVED" // auto-approval and operator approval share this state
	StateExecuted        State = "EXECUTED"
	StateRejected        State = "REJECTED"
	StateCancelled       State = "CANCELLED"
)

var (
	// ErrOrderNotFound is returned for unknown order ids.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderState is returned to the loser of a concurrent transition
	// attempt; the caller must re-fetch the order state.
	ErrOrderState = errors.New("order not in expected state")
)

// transitions is the order state machine. Rejected is reachable from every
// non-terminal state; Cancelled only from PendingApproval.
var transitions = map[State][]State{
	StateCreated:         {StateRuleChecked, StateRejected},
	StateRuleChecked:     {StateRiskChecked, StateRejected},
	StateRiskChecked:     {StateApproved, StatePendingApproval, StateRejected},
	StatePendingApproval: {StateApproved, StateRejected, StateCancelled},
	StateApproved:        {StateExecuted, StateRejected},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateExecuted || s == StateRejected || s == StateCancelled
}

// Order is the tracked unit of work created from an accepted signal. It is
// owned exclusively by its executor; once terminal it is immutable and kept
// only for audit and read purposes.
type Order struct {
	OrderID      string        `json:"order_id"`
	StrategyName string        `json:"strategy_name"`
	Signal       market.Signal `json:"signal"`
	State        State         `json:"state"`

	RuleCheckPassed bool              `json:"rule_check_passed"`
	RiskCheckPassed bool              `json:"risk_check_passed"`
	ForceSell       bool              `json:"force_sell"`
	Violations      []rules.Violation `json:"violations,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	DecidedAt    time.Time `json:"decided_at,omitzero"`
	Approver     string    `json:"approver,omitempty"`
	RejectReason string    `json:"reject_reason,omitempty"`
	BrokerRef    string    `json:"broker_ref,omitempty"`
}

// RejectDetail returns the human-readable reason the order was blocked,
// derived from the first mandatory violation or the recorded reject reason.
func (o *Order) RejectDetail() string {
	if o.RejectReason != "" {
		return o.RejectReason
	}
	for _, v := range o.Violations {
		if v.Severity == rules.SeverityMandatory {
			return v.RuleName + ": " + v.Detail
		}
	}
	return ""
}
