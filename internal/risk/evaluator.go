package risk

import (
	"fmt"
	"log"
	"sync"

	"compliance-gate/internal/gate"
	"compliance-gate/internal/market"
)

// Limits are the account-level thresholds the evaluator enforces. Zero
// values disable the corresponding check.
type Limits struct {
	MaxPositionFraction float64 `yaml:"max_position_fraction"`
	MaxTotalExposure    float64 `yaml:"max_total_exposure"`
	MaxDrawdown         float64 `yaml:"max_drawdown"`
	MinCashFraction     float64 `yaml:"min_cash_fraction"`
}

// Evaluator is the built-in account-level risk check. It runs after the
// per-signal rule check and looks only at the account snapshot: exposure,
// drawdown and cash. Limits can be updated at runtime.
type Evaluator struct {
	mu     sync.RWMutex
	limits Limits
}

func NewEvaluator(limits Limits) *Evaluator {
	return &Evaluator{limits: limits}
}

// SetLimits replaces the active limits.
func (ev *Evaluator) SetLimits(l Limits) {
	ev.mu.Lock()
	ev.limits = l
	ev.mu.Unlock()
	log.Printf("risk: limits updated: %+v", l)
}

// Limits returns the active limits.
func (ev *Evaluator) Limits() Limits {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	return ev.limits
}

// Check runs the ordered account checks and reports the first failure.
// Exits always pass: risk limits must never trap a position.
func (ev *Evaluator) Check(o gate.Order, snap market.Snapshot) (bool, string) {
	l := ev.Limits()
	sig := o.Signal

	if sig.IsExit() || o.ForceSell {
		return true, "exit order, risk checks waived"
	}

	acct := snap.Account

	if l.MaxDrawdown > 0 && acct.Drawdown >= l.MaxDrawdown {
		return false, fmt.Sprintf("account drawdown %.2f%% at or above limit %.2f%%",
			acct.Drawdown*100, l.MaxDrawdown*100)
	}

	if l.MaxPositionFraction > 0 && sig.TargetPosition > l.MaxPositionFraction {
		return false, fmt.Sprintf("target position %.2f%% exceeds per-order limit %.2f%%",
			sig.TargetPosition*100, l.MaxPositionFraction*100)
	}

	if l.MaxTotalExposure > 0 && acct.TotalExposure+sig.TargetPosition > l.MaxTotalExposure {
		return false, fmt.Sprintf("total exposure %.2f%% + order %.2f%% exceeds limit %.2f%%",
			acct.TotalExposure*100, sig.TargetPosition*100, l.MaxTotalExposure*100)
	}

	if l.MinCashFraction > 0 && acct.Equity > 0 {
		cashAfter := (acct.Cash - sig.TargetPosition*acct.Equity) / acct.Equity
		if cashAfter < l.MinCashFraction {
			return false, fmt.Sprintf("cash after fill %.2f%% below floor %.2f%%",
				cashAfter*100, l.MinCashFraction*100)
		}
	}

	return true, "all account checks passed"
}

var _ gate.RiskEvaluator = (*Evaluator)(nil)
