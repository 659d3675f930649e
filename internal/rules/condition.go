package rules

import (
	"fmt"
	"time"

	"compliance-gate/internal/market"
)

// Condition is a single typed predicate over (signal, snapshot). Evaluation
// must be pure: no clock reads, no randomness, no side effects. TimeWindow
// depends only on the signal's own timestamp, so identical inputs always
// produce identical results.
type Condition interface {
	// Kind returns the condition's wire name (matches the YAML "type" field).
	Kind() string
	// Evaluate returns ok=false plus a human-readable detail when violated.
	Evaluate(sig market.Signal, snap market.Snapshot) (ok bool, detail string)
}

// PriceRange requires the current market price of the signal's stock to be
// within [Min, Max]. Max <= 0 means unbounded above.
type PriceRange struct {
	Min float64
	Max float64
}

func (PriceRange) Kind() string { return "price_range" }

func (c PriceRange) Evaluate(sig market.Signal, snap market.Snapshot) (bool, string) {
	price := sig.Price
	if q, ok := snap.Quote(sig.StockCode); ok && q.Price > 0 {
		price = q.Price
	}
	if price < c.Min || (c.Max > 0 && price > c.Max) {
		return false, fmt.Sprintf("price %.2f outside allowed range [%.2f, %.2f]", price, c.Min, c.Max)
	}
	return true, ""
}

// TimeWindow restricts trading to a daily window. It is evaluated against the
// signal's timestamp, never the wall clock.
type TimeWindow struct {
	Start string // "15:04:05"
	End   string
}

func (TimeWindow) Kind() string { return "time_window" }

func (c TimeWindow) Evaluate(sig market.Signal, _ market.Snapshot) (bool, string) {
	start, err := time.Parse("15:04:05", c.Start)
	if err != nil {
		return false, fmt.Sprintf("invalid window start %q", c.Start)
	}
	end, err := time.Parse("15:04:05", c.End)
	if err != nil {
		return false, fmt.Sprintf("invalid window end %q", c.End)
	}
	ts := sig.Timestamp
	now := time.Date(0, 1, 1, ts.Hour(), ts.Minute(), ts.Second(), 0, time.UTC)
	if now.Before(start) || now.After(end) {
		return false, fmt.Sprintf("signal time %s outside trading window [%s, %s]",
			ts.Format("15:04:05"), c.Start, c.End)
	}
	return true, ""
}

// PositionLimit caps the target position fraction of a single stock.
type PositionLimit struct {
	MaxFraction float64
}

func (PositionLimit) Kind() string { return "position_limit" }

func (c PositionLimit) Evaluate(sig market.Signal, _ market.Snapshot) (bool, string) {
	if sig.TargetPosition > c.MaxFraction {
		return false, fmt.Sprintf("target position %.2f exceeds limit %.2f", sig.TargetPosition, c.MaxFraction)
	}
	return true, ""
}

// StopLoss triggers on exits whose loss exceeds MaxLossFraction
// (e.g. 0.08 = trigger at -8% or worse). Usually paired with ActionForceSell.
type StopLoss struct {
	MaxLossFraction float64
}

func (StopLoss) Kind() string { return "stop_loss" }

func (c StopLoss) Evaluate(sig market.Signal, _ market.Snapshot) (bool, string) {
	loss := sig.LossFraction()
	if loss <= -c.MaxLossFraction {
		return false, fmt.Sprintf("position loss %.2f%% breaches stop loss %.2f%%", loss*100, -c.MaxLossFraction*100)
	}
	return true, ""
}

// MaxDrawdown triggers once account drawdown reaches Threshold. Usually
// paired with ActionHaltTrading.
type MaxDrawdown struct {
	Threshold float64
}

func (MaxDrawdown) Kind() string { return "max_drawdown" }

func (c MaxDrawdown) Evaluate(_ market.Signal, snap market.Snapshot) (bool, string) {
	if snap.Account.Drawdown >= c.Threshold {
		return false, fmt.Sprintf("account drawdown %.2f%% reached threshold %.2f%%",
			snap.Account.Drawdown*100, c.Threshold*100)
	}
	return true, ""
}

// StockFilter rejects stocks carrying any of the excluded flags
// (ST, suspended, new listings and the like).
type StockFilter struct {
	ExcludeFlags []string
}

func (StockFilter) Kind() string { return "stock_filter" }

func (c StockFilter) Evaluate(sig market.Signal, snap market.Snapshot) (bool, string) {
	q, ok := snap.Quote(sig.StockCode)
	if !ok {
		return true, ""
	}
	for _, flag := range c.ExcludeFlags {
		if q.HasFlag(flag) {
			return false, fmt.Sprintf("stock %s carries excluded flag %q", sig.StockCode, flag)
		}
	}
	return true, ""
}

// Custom wraps a named predicate registered in code. The loader cannot build
// these from YAML; they are attached programmatically.
type Custom struct {
	Name      string
	Predicate func(sig market.Signal, snap market.Snapshot) (bool, string)
}

func (c Custom) Kind() string { return "custom:" + c.Name }

func (c Custom) Evaluate(sig market.Signal, snap market.Snapshot) (bool, string) {
	if c.Predicate == nil {
		return true, ""
	}
	return c.Predicate(sig, snap)
}
