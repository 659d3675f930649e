package rules

import (
	"fmt"
	"log"
	"sort"
	"sync/atomic"

	"compliance-gate/internal/market"
)

// RuleSet is an immutable, evaluation-ordered collection of rules for one
// strategy. Reloads build a fresh RuleSet and swap it in atomically, so any
// validation in flight keeps the snapshot it started with.
type RuleSet struct {
	Strategy string
	Version  int
	rules    []Rule
}

// NewRuleSet sorts the rules by ascending priority (ties by ID) and rejects
// duplicate rule IDs, which would make evaluation order ambiguous.
func NewRuleSet(strategy string, version int, rs []Rule) (*RuleSet, error) {
	seen := make(map[string]bool, len(rs))
	for _, r := range rs {
		if r.ID == "" {
			return nil, fmt.Errorf("rule with empty id in strategy %s", strategy)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule id %q in strategy %s", r.ID, strategy)
		}
		seen[r.ID] = true
	}
	sorted := make([]Rule, len(rs))
	copy(sorted, rs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	return &RuleSet{Strategy: strategy, Version: version, rules: sorted}, nil
}

// Rules returns the evaluation-ordered rules (copy, callers cannot mutate).
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Engine validates signals for one strategy against its current RuleSet and
// owns the strategy's sticky trading-halt flag.
type Engine struct {
	strategy string
	ruleset  atomic.Pointer[RuleSet]
	halted   atomic.Bool
}

// NewEngine creates an engine with an initial rule set. A rule set with zero
// rules is valid: every signal passes rule-check trivially.
func NewEngine(strategy string, rs *RuleSet) *Engine {
	e := &Engine{strategy: strategy}
	if rs == nil {
		rs, _ = NewRuleSet(strategy, 0, nil)
	}
	e.ruleset.Store(rs)
	return e
}

// Strategy returns the owning strategy name.
func (e *Engine) Strategy() string { return e.strategy }

// Swap atomically replaces the active rule set.
func (e *Engine) Swap(rs *RuleSet) {
	e.ruleset.Store(rs)
	log.Printf("rules: %s rule set swapped to version %d (%d rules)", e.strategy, rs.Version, len(rs.rules))
}

// RuleSet returns the active rule set snapshot.
func (e *Engine) RuleSet() *RuleSet { return e.ruleset.Load() }

// Halted reports the strategy's sticky halt flag.
func (e *Engine) Halted() bool { return e.halted.Load() }

// ClearHalt lifts the halt. Only an explicit operator action calls this;
// the flag never clears on its own.
func (e *Engine) ClearHalt() {
	e.halted.Store(false)
	log.Printf("rules: %s trading halt cleared", e.strategy)
}

// HaltViolation builds the synthetic violation used when a halted strategy
// rejects a signal without entering the per-rule loop.
func (e *Engine) HaltViolation(sig market.Signal) Violation {
	return Violation{
		RuleID:    "halt",
		RuleName:  "trading halted",
		SignalRef: signalRef(sig),
		Detail:    fmt.Sprintf("strategy %s is halted; all signals are rejected until an operator clears the halt", e.strategy),
		Timestamp: sig.Timestamp,
		Severity:  SeverityMandatory,
	}
}

// Validate evaluates the signal against all applicable rules in priority
// order. A violated mandatory reject rule stops evaluation immediately.
// Advisory violations are collected and do not block. Adjust rules contribute
// a clamped signal suggestion, force-sell rules flip the forced-exit path,
// and halt-trading rules set the strategy-wide sticky halt.
func (e *Engine) Validate(sig market.Signal, snap market.Snapshot) Result {
	rs := e.ruleset.Load()
	res := Result{Passed: true}

	for _, r := range rs.rules {
		if !r.appliesTo(sig) {
			continue
		}
		ok, detail := r.Condition.Evaluate(sig, snap)
		if ok {
			continue
		}

		v := Violation{
			RuleID:    r.ID,
			RuleName:  r.Name,
			SignalRef: signalRef(sig),
			Detail:    detail,
			Timestamp: sig.Timestamp,
			Severity:  SeverityAdvisory,
		}
		if r.Mandatory {
			v.Severity = SeverityMandatory
		}
		res.Violations = append(res.Violations, v)

		switch r.Action {
		case ActionAdjust:
			// Suggest a clamped signal; the executor decides whether to
			// apply it. Never blocks on its own.
			if adj := adjustSignal(r, sig); adj != nil {
				res.Adjusted = adj
			}
		case ActionForceSell:
			// A breached protective exit converts the order into a forced
			// sell instead of rejecting it.
			res.ForceSell = true
		case ActionHaltTrading:
			res.Halted = true
			e.halted.Store(true)
			log.Printf("rules: %s TRADING HALTED by rule %s: %s", e.strategy, r.ID, detail)
			if r.Mandatory {
				res.Passed = false
				return res
			}
		case ActionWarn:
			// Recorded only.
		default: // ActionReject
			if r.Mandatory {
				res.Passed = false
				return res
			}
		}
	}
	return res
}

// Summary reports rule counts by kind plus the halt state.
func (e *Engine) Summary() Summary {
	rs := e.ruleset.Load()
	s := Summary{
		Strategy: e.strategy,
		Version:  rs.Version,
		ByKind:   make(map[Kind]int),
	}
	for _, r := range rs.rules {
		s.TotalRules++
		if r.Mandatory {
			s.MandatoryRules++
		}
		s.ByKind[r.Kind]++
	}
	s.Halted = e.halted.Load()
	return s
}

// adjustSignal returns a copy of the signal clamped to satisfy the rule, or
// nil when the rule has nothing concrete to suggest.
func adjustSignal(r Rule, sig market.Signal) *market.Signal {
	if c, ok := r.Condition.(PositionLimit); ok {
		adj := sig
		adj.TargetPosition = c.MaxFraction
		return &adj
	}
	return nil
}

func signalRef(sig market.Signal) string {
	return sig.StockCode + "/" + sig.Action
}
