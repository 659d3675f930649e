package risk

import (
	"strings"
	"testing"
	"time"

	"compliance-gate/internal/gate"
	"compliance-gate/internal/market"
)

func buyOrder(target float64) gate.Order {
	return gate.Order{
		OrderID: "o1",
		Signal: market.Signal{
			StockCode:      "600519",
			Action:         market.ActionBuy,
			TargetPosition: target,
			Price:          1500,
			Timestamp:      time.Now(),
		},
	}
}

func snapshot(exposure, drawdown float64) market.Snapshot {
	return market.Snapshot{
		Account: market.Account{
			Equity:        1_000_000,
			Cash:          500_000,
			TotalExposure: exposure,
			Drawdown:      drawdown,
		},
	}
}

func TestCheckPassesWithinLimits(t *testing.T) {
	ev := NewEvaluator(Limits{
		MaxPositionFraction: 0.20,
		MaxTotalExposure:    0.80,
		MaxDrawdown:         0.15,
	})
	ok, detail := ev.Check(buyOrder(0.10), snapshot(0.30, 0.05))
	if !ok {
		t.Fatalf("expected pass, got: %s", detail)
	}
}

func TestCheckOrderedFailures(t *testing.T) {
	ev := NewEvaluator(Limits{
		MaxPositionFraction: 0.20,
		MaxTotalExposure:    0.80,
		MaxDrawdown:         0.15,
	})

	cases := []struct {
		name   string
		order  gate.Order
		snap   market.Snapshot
		reason string
	}{
		{"drawdown first", buyOrder(0.50), snapshot(0.90, 0.20), "drawdown"},
		{"position limit", buyOrder(0.50), snapshot(0.10, 0.01), "per-order limit"},
		{"total exposure", buyOrder(0.15), snapshot(0.75, 0.01), "total exposure"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, detail := ev.Check(tc.order, tc.snap)
			if ok {
				t.Fatal("expected failure")
			}
			if !strings.Contains(detail, tc.reason) {
				t.Fatalf("expected detail mentioning %q, got %q", tc.reason, detail)
			}
		})
	}
}

func TestCheckWaivesExits(t *testing.T) {
	ev := NewEvaluator(Limits{MaxDrawdown: 0.01})

	o := buyOrder(0.10)
	o.Signal.Action = market.ActionSell
	if ok, _ := ev.Check(o, snapshot(0.99, 0.50)); !ok {
		t.Fatal("sell orders must pass risk checks")
	}

	forced := buyOrder(0.10)
	forced.ForceSell = true
	if ok, _ := ev.Check(forced, snapshot(0.99, 0.50)); !ok {
		t.Fatal("forced exits must pass risk checks")
	}
}

func TestCheckZeroLimitsDisableChecks(t *testing.T) {
	ev := NewEvaluator(Limits{})
	if ok, _ := ev.Check(buyOrder(0.99), snapshot(0.99, 0.99)); !ok {
		t.Fatal("zero limits must disable all checks")
	}
}

func TestSetLimitsTakesEffect(t *testing.T) {
	ev := NewEvaluator(Limits{})
	if ok, _ := ev.Check(buyOrder(0.50), snapshot(0.10, 0)); !ok {
		t.Fatal("expected pass before limits set")
	}
	ev.SetLimits(Limits{MaxPositionFraction: 0.20})
	if ok, _ := ev.Check(buyOrder(0.50), snapshot(0.10, 0)); ok {
		t.Fatal("expected failure after limits set")
	}
}
