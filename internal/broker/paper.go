package broker

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"compliance-gate/internal/gate"
)

// ErrSubmitFailed wraps injected and simulated submission failures.
var ErrSubmitFailed = errors.New("broker submit failed")

// Fill is one simulated execution.
type Fill struct {
	Ref       string    `json:"ref"`
	OrderID   string    `json:"order_id"`
	StockCode string    `json:"stock_code"`
	Action    string    `json:"action"`
	Price     float64   `json:"price"`
	Fee       float64   `json:"fee"`
	FilledAt  time.Time `json:"filled_at"`
}

// Paper is a simulated broker: every submitted order fills immediately at
// the signal price, minus a flat fee. Tests inject failures through FailNext
// to exercise the execution-failure path.
type Paper struct {
	feeRate float64

	mu       sync.Mutex
	fills    []Fill
	failNext error
}

func NewPaper(feeRate float64) *Paper {
	return &Paper{feeRate: feeRate}
}

// FailNext makes the next Submit return err instead of filling.
func (p *Paper) FailNext(err error) {
	p.mu.Lock()
	p.failNext = err
	p.mu.Unlock()
}

// Submit fills the order immediately and returns the fill reference.
func (p *Paper) Submit(o gate.Order) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	f := Fill{
		Ref:       "paper-" + uuid.NewString(),
		OrderID:   o.OrderID,
		StockCode: o.Signal.StockCode,
		Action:    o.Signal.Action,
		Price:     o.Signal.Price,
		Fee:       o.Signal.Price * p.feeRate,
		FilledAt:  time.Now(),
	}
	p.fills = append(p.fills, f)
	log.Printf("broker: filled %s %s %s @ %.2f (ref %s)", o.OrderID, f.Action, f.StockCode, f.Price, f.Ref)
	return f.Ref, nil
}

// Fills returns a copy of all fills so far.
func (p *Paper) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Fill, len(p.fills))
	copy(out, p.fills)
	return out
}

var _ gate.BrokerAdapter = (*Paper)(nil)
