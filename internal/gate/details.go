package gate

import (
	"compliance-gate/internal/market"
	"compliance-gate/internal/rules"
)

// Audit detail payloads. These are marshaled as structs so the JSON field
// order is stable and the stream stays diff-able across versions.

type signalDetails struct {
	Signal market.Signal `json:"signal"`
}

type ruleCheckDetails struct {
	Passed     bool              `json:"passed"`
	Halted     bool              `json:"halted,omitempty"`
	ForceSell  bool              `json:"force_sell,omitempty"`
	Adjusted   *market.Signal    `json:"adjusted,omitempty"`
	Violations []rules.Violation `json:"violations,omitempty"`
}

type riskCheckDetails struct {
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

type approvalDetails struct {
	AutoApprove bool   `json:"auto_approve"`
	Pending     bool   `json:"pending"`
	ForceSell   bool   `json:"force_sell,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type approvedDetails struct {
	Approver string `json:"approver"`
}

type rejectedDetails struct {
	Reason string `json:"reason"`
}

type cancelledDetails struct {
	Reason string `json:"reason,omitempty"`
}

type executedDetails struct {
	BrokerRef string `json:"broker_ref"`
	Forced    bool   `json:"forced,omitempty"`
}

type executionFailedDetails struct {
	Error string `json:"error"`
}

type haltDetails struct {
	RuleID string `json:"rule_id,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type reloadDetails struct {
	Version  int `json:"version"`
	NumRules int `json:"num_rules"`
}
