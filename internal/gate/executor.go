package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"compliance-gate/internal/audit"
	"compliance-gate/internal/events"
	"compliance-gate/internal/market"
	"compliance-gate/internal/rules"
	"compliance-gate/pkg/db"
)

// Config controls the approval path of an executor. When both flags are
// false the executor defaults to manual approval: the gate fails toward
// caution.
type Config struct {
	AutoApprove           bool
	RequireManualApproval bool
}

func (c Config) normalized() Config {
	if !c.AutoApprove && !c.RequireManualApproval {
		c.RequireManualApproval = true
	}
	return c
}

// Executor runs the compliance pipeline for one strategy: rule check, risk
// check, approval decision, broker handoff. Every state transition writes
// its audit entry before the in-memory state changes, so a crash between
// write and apply is recoverable by replaying the log.
type Executor struct {
	strategy string
	engine   *rules.Engine
	risk     RiskEvaluator
	broker   BrokerAdapter
	auditLog *audit.Log
	bus      *events.Bus
	store    *db.Database // optional order snapshot cache
	cfg      Config

	mu     sync.Mutex
	orders map[string]*Order
	seq    int
}

// NewExecutor wires an executor for one strategy. bus and store may be nil.
func NewExecutor(strategy string, engine *rules.Engine, riskEval RiskEvaluator, broker BrokerAdapter, auditLog *audit.Log, bus *events.Bus, store *db.Database, cfg Config) *Executor {
	return &Executor{
		strategy: strategy,
		engine:   engine,
		risk:     riskEval,
		broker:   broker,
		auditLog: auditLog,
		bus:      bus,
		store:    store,
		cfg:      cfg.normalized(),
		orders:   make(map[string]*Order),
	}
}

// Strategy returns the strategy this executor serves.
func (e *Executor) Strategy() string { return e.strategy }

// Engine returns the strategy's rule engine.
func (e *Executor) Engine() *rules.Engine { return e.engine }

// ProcessSignal runs one signal through the gate. It returns the resulting
// order in whatever state it reached, including Rejected: callers must
// inspect State and Violations. A nil order with an error means a fatal
// internal failure (audit log unwritable) and no order was produced.
func (e *Executor) ProcessSignal(ctx context.Context, sig market.Signal, snap market.Snapshot) (*Order, error) {
	o := &Order{
		StrategyName: e.strategy,
		Signal:       sig,
		State:        StateCreated,
		CreatedAt:    time.Now(),
	}

	e.mu.Lock()
	e.seq++
	o.OrderID = fmt.Sprintf("%s-%s-%04d", e.strategy, o.CreatedAt.Format("20060102150405"), e.seq)
	e.mu.Unlock()

	if err := e.append(ctx, o.OrderID, audit.EventSignalGenerated, signalDetails{Signal: sig}, ""); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.orders[o.OrderID] = o
	e.mu.Unlock()
	e.publish(events.EventSignalReceived, o)

	// A halted strategy rejects every signal before the per-rule loop runs.
	if e.engine.Halted() {
		v := e.engine.HaltViolation(sig)
		details := ruleCheckDetails{Passed: false, Halted: true, Violations: []rules.Violation{v}}
		if err := e.apply(ctx, o, StateCreated, StateRejected, audit.EventRuleCheckResult, details, "", func(o *Order) {
			o.RuleCheckPassed = false
			o.Violations = []rules.Violation{v}
			o.RejectReason = v.Detail
		}); err != nil {
			return nil, err
		}
		e.publish(events.EventOrderRejected, o)
		return e.snapshotOf(o), nil
	}

	// 1. Rule check. The result entry is the write-ahead record for the
	// Created -> RuleChecked | Rejected transition.
	res := e.engine.Validate(sig, snap)
	if res.Halted {
		hd := haltDetails{Detail: firstMandatoryDetail(res.Violations)}
		if err := e.append(ctx, o.OrderID, audit.EventTradingHalted, hd, ""); err != nil {
			return nil, err
		}
		e.publish(events.EventTradingHalted, e.strategy)
	}

	ruleDetails := ruleCheckDetails{
		Passed:     res.Passed,
		Halted:     res.Halted,
		ForceSell:  res.ForceSell,
		Adjusted:   res.Adjusted,
		Violations: res.Violations,
	}
	if !res.Passed {
		if err := e.apply(ctx, o, StateCreated, StateRejected, audit.EventRuleCheckResult, ruleDetails, "", func(o *Order) {
			o.RuleCheckPassed = false
			o.Violations = res.Violations
			o.RejectReason = firstMandatoryDetail(res.Violations)
		}); err != nil {
			return nil, err
		}
		log.Printf("gate: %s rejected %s on rule check: %s", e.strategy, o.OrderID, o.RejectReason)
		e.publish(events.EventOrderRejected, o)
		return e.snapshotOf(o), nil
	}

	if err := e.apply(ctx, o, StateCreated, StateRuleChecked, audit.EventRuleCheckResult, ruleDetails, "", func(o *Order) {
		o.RuleCheckPassed = true
		o.Violations = res.Violations
		o.ForceSell = res.ForceSell
		if res.Adjusted != nil {
			// The executor applies suggested adjustments rather than
			// rejecting: the clamped signal satisfies the rule.
			o.Signal = *res.Adjusted
		}
	}); err != nil {
		return nil, err
	}

	// 2. Risk check (external collaborator; detail recorded verbatim).
	riskPassed, riskDetail := true, "no risk evaluator configured"
	if e.risk != nil {
		riskPassed, riskDetail = e.risk.Check(*e.snapshotOf(o), snap)
	}

	riskDetails := riskCheckDetails{Passed: riskPassed, Detail: riskDetail}
	if !riskPassed {
		if err := e.apply(ctx, o, StateRuleChecked, StateRejected, audit.EventRiskCheckResult, riskDetails, "", func(o *Order) {
			o.RiskCheckPassed = false
			o.RejectReason = riskDetail
		}); err != nil {
			return nil, err
		}
		log.Printf("gate: %s rejected %s on risk check: %s", e.strategy, o.OrderID, riskDetail)
		e.publish(events.EventOrderRejected, o)
		return e.snapshotOf(o), nil
	}

	if err := e.apply(ctx, o, StateRuleChecked, StateRiskChecked, audit.EventRiskCheckResult, riskDetails, "", func(o *Order) {
		o.RiskCheckPassed = true
	}); err != nil {
		return nil, err
	}

	// 3. Approval decision. Forced exits bypass manual approval entirely;
	// otherwise the executor configuration decides.
	switch {
	case o.ForceSell:
		details := approvalDetails{AutoApprove: true, ForceSell: true, Reason: "forced exit bypasses manual approval"}
		if err := e.apply(ctx, o, StateRiskChecked, StateApproved, audit.EventApprovalDecision, details, "", nil); err != nil {
			return nil, err
		}
		return e.execute(ctx, o)

	case e.cfg.AutoApprove:
		details := approvalDetails{AutoApprove: true}
		if err := e.apply(ctx, o, StateRiskChecked, StateApproved, audit.EventApprovalDecision, details, "", nil); err != nil {
			return nil, err
		}
		return e.execute(ctx, o)

	default:
		details := approvalDetails{Pending: true, Reason: "manual approval required"}
		if err := e.apply(ctx, o, StateRiskChecked, StatePendingApproval, audit.EventApprovalDecision, details, "", nil); err != nil {
			return nil, err
		}
		log.Printf("gate: %s order %s pending approval", e.strategy, o.OrderID)
		e.publish(events.EventOrderPending, o)
		return e.snapshotOf(o), nil
	}
}

// ApproveOrder approves a pending order and hands it to the broker. The
// approver identity is recorded in the audit entry. A concurrent decision on
// the same order loses with ErrOrderState.
func (e *Executor) ApproveOrder(ctx context.Context, orderID, approver string) (*Order, error) {
	o, err := e.lookup(orderID)
	if err != nil {
		return nil, err
	}
	err = e.apply(ctx, o, StatePendingApproval, StateApproved, audit.EventOrderApproved,
		approvedDetails{Approver: approver}, approver, func(o *Order) {
			o.Approver = approver
		})
	if err != nil {
		return nil, err
	}
	log.Printf("gate: %s order %s approved by %s", e.strategy, orderID, approver)
	e.publish(events.EventOrderApproved, o)
	return e.execute(ctx, o)
}

// RejectOrder rejects a pending order with a recorded reason.
func (e *Executor) RejectOrder(ctx context.Context, orderID, reason, operator string) (*Order, error) {
	o, err := e.lookup(orderID)
	if err != nil {
		return nil, err
	}
	err = e.apply(ctx, o, StatePendingApproval, StateRejected, audit.EventOrderRejected,
		rejectedDetails{Reason: reason}, operator, func(o *Order) {
			o.RejectReason = reason
		})
	if err != nil {
		return nil, err
	}
	log.Printf("gate: %s order %s rejected by %s: %s", e.strategy, orderID, operator, reason)
	e.publish(events.EventOrderRejected, o)
	return e.snapshotOf(o), nil
}

// CancelOrder cancels a pending order without a rejection verdict.
func (e *Executor) CancelOrder(ctx context.Context, orderID, operator string) (*Order, error) {
	o, err := e.lookup(orderID)
	if err != nil {
		return nil, err
	}
	err = e.apply(ctx, o, StatePendingApproval, StateCancelled, audit.EventOrderCancelled,
		cancelledDetails{}, operator, nil)
	if err != nil {
		return nil, err
	}
	log.Printf("gate: %s order %s cancelled by %s", e.strategy, orderID, operator)
	e.publish(events.EventOrderCancelled, o)
	return e.snapshotOf(o), nil
}

// ClearHalt lifts the strategy's trading halt. Halts never clear on their
// own; this is an explicit operator action and is audited as such.
func (e *Executor) ClearHalt(ctx context.Context, operator string) error {
	if err := e.append(ctx, "", audit.EventHaltCleared, haltDetails{}, operator); err != nil {
		return err
	}
	e.engine.ClearHalt()
	e.publish(events.EventHaltCleared, e.strategy)
	return nil
}

// ReloadRules swaps in a new rule set and audits the reload.
func (e *Executor) ReloadRules(ctx context.Context, rs *rules.RuleSet, operator string) error {
	details := reloadDetails{Version: rs.Version, NumRules: len(rs.Rules())}
	if err := e.append(ctx, "", audit.EventRulesReloaded, details, operator); err != nil {
		return err
	}
	e.engine.Swap(rs)
	e.publish(events.EventRuleSetReloaded, e.engine.Summary())
	return nil
}

// GetPendingOrders returns copies of all orders awaiting approval.
func (e *Executor) GetPendingOrders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Order
	for _, o := range e.orders {
		if o.State == StatePendingApproval {
			out = append(out, *o)
		}
	}
	return out
}

// GetOrder returns a copy of one order.
func (e *Executor) GetOrder(orderID string) (Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// GetAuditLogs returns matching audit entries. Read-only: repeated calls
// with identical filters return identical results absent new events.
func (e *Executor) GetAuditLogs(f audit.Filter) []audit.Entry {
	return e.auditLog.List(f)
}

// execute hands an approved order to the broker adapter. Broker failure
// rejects the order with the adapter's error recorded verbatim; the gate
// never retries.
func (e *Executor) execute(ctx context.Context, o *Order) (*Order, error) {
	if e.broker == nil {
		return e.failExecution(ctx, o, "no broker adapter configured")
	}

	ref, err := e.broker.Submit(*e.snapshotOf(o))
	if err != nil {
		return e.failExecution(ctx, o, err.Error())
	}

	details := executedDetails{BrokerRef: ref, Forced: o.ForceSell}
	if err := e.apply(ctx, o, StateApproved, StateExecuted, audit.EventOrderExecuted, details, "", func(o *Order) {
		o.BrokerRef = ref
	}); err != nil {
		return nil, err
	}
	log.Printf("gate: %s order %s executed (broker ref %s)", e.strategy, o.OrderID, ref)
	e.publish(events.EventOrderExecuted, o)
	return e.snapshotOf(o), nil
}

func (e *Executor) failExecution(ctx context.Context, o *Order, detail string) (*Order, error) {
	err := e.apply(ctx, o, StateApproved, StateRejected, audit.EventExecutionFailed,
		executionFailedDetails{Error: detail}, "", func(o *Order) {
			o.RejectReason = detail
		})
	if err != nil {
		return nil, err
	}
	log.Printf("gate: %s order %s execution failed: %s", e.strategy, o.OrderID, detail)
	e.publish(events.EventOrderRejected, o)
	return e.snapshotOf(o), nil
}

// apply performs one guarded state transition. The audit entry is appended
// before the state is applied; if the append fails the transition is refused
// and the error surfaces to the caller (write-ahead invariant). The state
// guard and the apply are atomic under the executor lock, so of two racing
// callers exactly one wins and the loser gets ErrOrderState.
func (e *Executor) apply(ctx context.Context, o *Order, expect, to State, eventType string, details any, operator string, mutate func(*Order)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if o.State != expect {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrOrderState, o.OrderID, o.State, expect)
	}
	if !canTransition(o.State, to) {
		return fmt.Errorf("%w: %s cannot move %s -> %s", ErrOrderState, o.OrderID, o.State, to)
	}

	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	if _, err := e.auditLog.Append(ctx, audit.Entry{
		OrderID:   o.OrderID,
		EventType: eventType,
		Details:   raw,
		Operator:  operator,
	}); err != nil {
		// Refusing to apply an unaudited state change.
		return fmt.Errorf("transition %s -> %s refused: %w", o.State, to, err)
	}

	o.State = to
	if mutate != nil {
		mutate(o)
	}
	if to.Terminal() || to == StateApproved || to == StatePendingApproval {
		o.DecidedAt = time.Now()
	}
	e.persistLocked(ctx, o)
	return nil
}

// append writes a non-transition audit entry (pre-order and strategy-level
// events).
func (e *Executor) append(ctx context.Context, orderID, eventType string, details any, operator string) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	if _, err := e.auditLog.Append(ctx, audit.Entry{
		OrderID:   orderID,
		EventType: eventType,
		Details:   raw,
		Operator:  operator,
	}); err != nil {
		return err
	}
	return nil
}

// persistLocked upserts the order snapshot cache. Best-effort: the audit
// stream is authoritative and the table can be rebuilt from it.
func (e *Executor) persistLocked(ctx context.Context, o *Order) {
	if e.store == nil {
		return
	}
	row := db.GateOrder{
		OrderID:         o.OrderID,
		StrategyName:    o.StrategyName,
		StockCode:       o.Signal.StockCode,
		Action:          o.Signal.Action,
		Price:           o.Signal.Price,
		TargetPosition:  o.Signal.TargetPosition,
		State:           string(o.State),
		RuleCheckPassed: o.RuleCheckPassed,
		RiskCheckPassed: o.RiskCheckPassed,
		ForceSell:       o.ForceSell,
		Approver:        o.Approver,
		RejectReason:    o.RejectReason,
		BrokerRef:       o.BrokerRef,
		CreatedAt:       o.CreatedAt,
		DecidedAt:       o.DecidedAt,
	}
	if err := e.store.UpsertGateOrder(ctx, row); err != nil {
		log.Printf("gate: %s store order %s: %v", e.strategy, o.OrderID, err)
	}
}

func (e *Executor) lookup(orderID string) (*Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return o, nil
}

// snapshotOf returns a stable copy of the order for callers outside the
// executor lock.
func (e *Executor) snapshotOf(o *Order) *Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *o
	return &cp
}

func (e *Executor) publish(topic events.Event, payload any) {
	if e.bus == nil {
		return
	}
	if o, ok := payload.(*Order); ok {
		payload = *e.snapshotOf(o)
	}
	e.bus.Publish(topic, payload)
}

func firstMandatoryDetail(vs []rules.Violation) string {
	for _, v := range vs {
		if v.Severity == rules.SeverityMandatory {
			return v.RuleName + ": " + v.Detail
		}
	}
	return ""
}
