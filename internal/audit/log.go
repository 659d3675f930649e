package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the durable sink behind a Log. Append must be atomic: either the
// entry is fully persisted or an error is returned.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, strategy string, f Filter) ([]Entry, error)
}

// Log is the append-only audit stream of one strategy. Writes are serialized
// by a single mutex held only for the append itself; reads copy from the
// in-memory cache and never block writers for long.
//
// Append is write-ahead: the entry goes to the durable store first, and only
// then into the cache. Callers must not apply the state change an entry
// records until Append has returned nil.
type Log struct {
	strategy string
	store    Store // may be nil (memory-only, used in tests)

	mu      sync.Mutex
	seq     int64
	lastTS  time.Time
	entries []Entry

	clock func() time.Time
}

// NewLog creates the audit log for a strategy, replaying any entries already
// in the store so the sequence counter continues where it left off.
func NewLog(ctx context.Context, strategy string, store Store) (*Log, error) {
	l := &Log{strategy: strategy, store: store, clock: time.Now}
	if store != nil {
		existing, err := store.List(ctx, strategy, Filter{})
		if err != nil {
			return nil, fmt.Errorf("recover audit log %s: %w", strategy, err)
		}
		l.entries = existing
		if n := len(existing); n > 0 {
			l.seq = existing[n-1].Seq
			l.lastTS = existing[n-1].Timestamp
		}
	}
	return l, nil
}

// NewMemoryLog creates a log without durable backing.
func NewMemoryLog(strategy string) *Log {
	return &Log{strategy: strategy, clock: time.Now}
}

// Strategy returns the owning strategy name.
func (l *Log) Strategy() string { return l.strategy }

// Append assigns the entry's identity (log id, sequence, timestamp), writes
// it to the durable store, then caches it. On store failure nothing is
// cached and the caller must refuse the corresponding state transition.
func (l *Log) Append(ctx context.Context, e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.clock()
	if ts.Before(l.lastTS) {
		ts = l.lastTS // keep timestamps monotonic; seq breaks ties
	}

	e.LogID = uuid.NewString()
	e.Seq = l.seq + 1
	e.Timestamp = ts
	e.StrategyName = l.strategy

	if l.store != nil {
		if err := l.store.Append(ctx, e); err != nil {
			return Entry{}, fmt.Errorf("audit append: %w", err)
		}
	}

	l.seq = e.Seq
	l.lastTS = ts
	l.entries = append(l.entries, e)
	return e, nil
}

// List returns matching entries in write order. The result is a copy;
// repeated calls with identical filters return identical results absent new
// appends.
func (l *Log) List(f Filter) []Entry {
	l.mu.Lock()
	snapshot := l.entries
	l.mu.Unlock()

	var out []Entry
	for _, e := range snapshot {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries written so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
