package market

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"
)

// Tick pairs a synthetic signal with the snapshot it was generated against.
type Tick struct {
	Signal   Signal
	Snapshot Snapshot
}

// MockFeed generates synthetic signals for local development so the gate can
// be exercised without an upstream strategy process.
type MockFeed struct {
	Stocks     []string
	StartPrice float64
	Step       float64
	Interval   time.Duration
}

// Start emits ticks until ctx is cancelled. The returned channel closes on
// shutdown.
func (m *MockFeed) Start(ctx context.Context) <-chan Tick {
	stocks := m.Stocks
	if len(stocks) == 0 {
		stocks = []string{"600519", "000001"}
	}
	price := m.StartPrice
	if price == 0 {
		price = 100
	}
	step := m.Step
	if step == 0 {
		step = 0.5
	}
	interval := m.Interval
	if interval == 0 {
		interval = 5 * time.Second
	}

	out := make(chan Tick, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Printf("mock feed: emitting signals for %v every %v", stocks, interval)

		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			price += (rand.Float64()*2 - 1) * step
			code := stocks[i%len(stocks)]
			action := ActionBuy
			if i%3 == 2 {
				action = ActionSell
			}

			now := time.Now()
			sig := Signal{
				StockCode:      code,
				Action:         action,
				TargetPosition: 0.05 + rand.Float64()*0.10,
				Price:          price,
				EntryPrice:     price * (1 + (rand.Float64()*0.1 - 0.05)),
				Confidence:     0.5 + rand.Float64()*0.5,
				Reason:         fmt.Sprintf("mock tick %d", i),
				Timestamp:      now,
			}
			snap := Snapshot{
				Quotes: map[string]Quote{
					code: {Price: price, Volume: 1_000_000},
				},
				Account: Account{
					Equity:        1_000_000,
					Cash:          600_000,
					TotalExposure: 0.40,
					Drawdown:      rand.Float64() * 0.05,
				},
				Taken: now,
			}

			select {
			case out <- Tick{Signal: sig, Snapshot: snap}:
			default:
				// gate busy, drop the tick
			}
		}
	}()
	return out
}
