package gate

import (
	"encoding/json"
	"sort"
	"time"

	"compliance-gate/internal/audit"
	"compliance-gate/internal/rules"
)

// Report is an aggregated view over a strategy's audit stream. Building it
// reads the log only, so generating a report never perturbs gate state.
type Report struct {
	Strategy      string         `json:"strategy"`
	GeneratedAt   time.Time      `json:"generated_at"`
	TotalSignals  int            `json:"total_signals"`
	TotalEntries  int            `json:"total_entries"`
	OrdersByState map[State]int  `json:"orders_by_state"`
	ViolatedRules []RuleHitCount `json:"violated_rules"`
	HaltEvents    int            `json:"halt_events"`
}

// RuleHitCount is one rule's violation tally within a report.
type RuleHitCount struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Count    int    `json:"count"`
}

// GenerateExecutionReport aggregates the full audit stream. Order states are
// reconstructed by replay rather than read from the live order map, so the
// report agrees with what the log proves.
func (e *Executor) GenerateExecutionReport() Report {
	entries := e.auditLog.List(audit.Filter{})
	states := ReplayOrderStates(entries)

	rep := Report{
		Strategy:      e.strategy,
		GeneratedAt:   time.Now(),
		TotalEntries:  len(entries),
		OrdersByState: make(map[State]int),
	}
	for _, st := range states {
		rep.OrdersByState[st]++
	}

	hits := make(map[string]RuleHitCount)
	for _, en := range entries {
		switch en.EventType {
		case audit.EventSignalGenerated:
			rep.TotalSignals++
		case audit.EventTradingHalted:
			rep.HaltEvents++
		case audit.EventRuleCheckResult:
			var d ruleCheckDetails
			if err := json.Unmarshal(en.Details, &d); err != nil {
				continue
			}
			for _, v := range d.Violations {
				h := hits[v.RuleID]
				h.RuleID = v.RuleID
				h.RuleName = v.RuleName
				h.Count++
				hits[v.RuleID] = h
			}
		}
	}
	for _, h := range hits {
		rep.ViolatedRules = append(rep.ViolatedRules, h)
	}
	sort.Slice(rep.ViolatedRules, func(i, j int) bool {
		if rep.ViolatedRules[i].Count != rep.ViolatedRules[j].Count {
			return rep.ViolatedRules[i].Count > rep.ViolatedRules[j].Count
		}
		return rep.ViolatedRules[i].RuleID < rep.ViolatedRules[j].RuleID
	})
	return rep
}

// ReplayOrderStates reconstructs the final state of every order from its
// audit entries alone. The mapping is total: each transition wrote exactly
// one entry, so replaying the stream in order lands every order where the
// live executor left it.
func ReplayOrderStates(entries []audit.Entry) map[string]State {
	states := make(map[string]State)
	for _, en := range entries {
		if en.OrderID == "" {
			continue
		}
		switch en.EventType {
		case audit.EventSignalGenerated:
			states[en.OrderID] = StateCreated
		case audit.EventRuleCheckResult:
			var d ruleCheckDetails
			if err := json.Unmarshal(en.Details, &d); err != nil {
				continue
			}
			if d.Passed {
				states[en.OrderID] = StateRuleChecked
			} else {
				states[en.OrderID] = StateRejected
			}
		case audit.EventRiskCheckResult:
			var d riskCheckDetails
			if err := json.Unmarshal(en.Details, &d); err != nil {
				continue
			}
			if d.Passed {
				states[en.OrderID] = StateRiskChecked
			} else {
				states[en.OrderID] = StateRejected
			}
		case audit.EventApprovalDecision:
			var d approvalDetails
			if err := json.Unmarshal(en.Details, &d); err != nil {
				continue
			}
			if d.Pending {
				states[en.OrderID] = StatePendingApproval
			} else {
				states[en.OrderID] = StateApproved
			}
		case audit.EventOrderApproved:
			states[en.OrderID] = StateApproved
		case audit.EventOrderRejected, audit.EventExecutionFailed:
			states[en.OrderID] = StateRejected
		case audit.EventOrderCancelled:
			states[en.OrderID] = StateCancelled
		case audit.EventOrderExecuted:
			states[en.OrderID] = StateExecuted
		}
	}
	return states
}

// ReplayViolations extracts the violations an order accumulated, for audit
// review tooling.
func ReplayViolations(entries []audit.Entry, orderID string) []rules.Violation {
	var out []rules.Violation
	for _, en := range entries {
		if en.OrderID != orderID || en.EventType != audit.EventRuleCheckResult {
			continue
		}
		var d ruleCheckDetails
		if err := json.Unmarshal(en.Details, &d); err != nil {
			continue
		}
		out = append(out, d.Violations...)
	}
	return out
}
