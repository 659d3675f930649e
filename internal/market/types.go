package market

import "time"

// Signal actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Signal is a proposed trading action produced by a strategy layer.
// The gate never generates signals, it only vets them.
type Signal struct {
	StockCode      string    `json:"stock_code"`
	Action         string    `json:"action"`          // BUY, SELL
	TargetPosition float64   `json:"target_position"` // fraction of portfolio, 0..1, 0 = unset
	Price          float64   `json:"price"`
	EntryPrice     float64   `json:"entry_price,omitempty"` // set on exits, for loss calculation
	Confidence     float64   `json:"confidence"`            // 0..1
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

// IsExit reports whether the signal closes an existing position.
func (s Signal) IsExit() bool {
	return s.Action == ActionSell
}

// LossFraction returns the signed return of the position being exited,
// e.g. -0.10 for a 10% loss. Zero when no entry price is known.
func (s Signal) LossFraction() float64 {
	if s.EntryPrice <= 0 || s.Price <= 0 {
		return 0
	}
	return s.Price/s.EntryPrice - 1
}

// Quote is per-stock market data inside a snapshot.
type Quote struct {
	Price      float64  `json:"price"`
	Volume     float64  `json:"volume"`
	Volatility float64  `json:"volatility"`
	Flags      []string `json:"flags,omitempty"` // e.g. "ST", "suspended", "new_listing"
}

// HasFlag reports whether the quote carries the given exclusion flag.
func (q Quote) HasFlag(flag string) bool {
	for _, f := range q.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Account is the portfolio-level part of a snapshot.
type Account struct {
	Equity        float64 `json:"equity"`
	Cash          float64 `json:"cash"`
	TotalExposure float64 `json:"total_exposure"`
	Drawdown      float64 `json:"drawdown"` // current peak-to-trough fraction, e.g. 0.12
}

// Snapshot is a point-in-time view of the market and account handed to the
// gate together with a signal. Rule evaluation reads it and never mutates it.
type Snapshot struct {
	Quotes  map[string]Quote `json:"quotes"`
	Account Account          `json:"account"`
	Taken   time.Time        `json:"taken"`
}

// Quote returns the quote for a stock; ok is false when the snapshot has none.
func (s Snapshot) Quote(code string) (Quote, bool) {
	q, ok := s.Quotes[code]
	return q, ok
}
