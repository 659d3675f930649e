package rules

import (
	"time"

	"compliance-gate/internal/market"
)

// Kind classifies what stage of a trade a rule governs.
type Kind string

const (
	KindEntry        Kind = "entry"
	KindExit         Kind = "exit"
	KindPositionSize Kind = "position_size"
	KindRisk         Kind = "risk"
	KindFilter       Kind = "filter"
)

// Action is what a triggered rule demands.
type Action string

const (
	ActionReject      Action = "reject"
	ActionAdjust      Action = "adjust"
	ActionForceSell   Action = "force_sell"
	ActionHaltTrading Action = "halt_trading"
	ActionWarn        Action = "warn"
)

// Severity of a recorded violation.
type Severity string

const (
	SeverityMandatory Severity = "mandatory"
	SeverityAdvisory  Severity = "advisory"
)

// Rule is one named, typed condition plus the action taken when it is
// violated. Rules are immutable after construction; reloading a strategy's
// rules produces a whole new RuleSet.
type Rule struct {
	ID          string
	Kind        Kind
	Name        string
	Description string
	Condition   Condition
	Action      Action
	Mandatory   bool
	Priority    int // lower evaluates first, ties break by ID ascending
}

// appliesTo filters entry rules to buys and exit rules to sells; all other
// kinds apply to every signal.
func (r Rule) appliesTo(sig market.Signal) bool {
	switch r.Kind {
	case KindEntry:
		return sig.Action == market.ActionBuy
	case KindExit:
		return sig.Action == market.ActionSell
	default:
		return true
	}
}

// Violation records a single rule breach. Violations are created only during
// evaluation and never mutated afterwards.
type Violation struct {
	RuleID    string    `json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	SignalRef string    `json:"signal_ref"` // stock code + action of the offending signal
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
}

// Result is the outcome of validating one signal against a rule set.
type Result struct {
	Passed     bool
	Violations []Violation
	// Adjusted carries a clamped copy of the signal when an adjust rule
	// fired. The executor decides whether to apply it.
	Adjusted *market.Signal
	// ForceSell is set when a force-sell rule fired; the executor routes the
	// order past manual approval.
	ForceSell bool
	// Halted is set when a halt-trading rule fired during this evaluation.
	Halted bool
}

// Summary describes a rule set for reporting.
type Summary struct {
	Strategy       string       `json:"strategy"`
	Version        int          `json:"version"`
	TotalRules     int          `json:"total_rules"`
	MandatoryRules int          `json:"mandatory_rules"`
	ByKind         map[Kind]int `json:"by_kind"`
	Halted         bool         `json:"halted"`
}
