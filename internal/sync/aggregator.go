package sync

import (
	gosync "sync"
	"time"

	"github.com/shopspring/decimal"
)

// AggregatedOrder is a planned order coalesced across sync cycles.
type AggregatedOrder struct {
	Symbol    string
	Side      string
	Action    string
	Qty       decimal.Decimal
	Count     int // how many cycles planned this order
	FirstSeen time.Time

	gen uint64
}

func orderKey(symbol, side, action string) string {
	return symbol + "|" + side + "|" + action
}

// OrderAggregator coalesces orders planned for the same symbol, side and
// action across consecutive sync cycles. An order is released once it has
// stayed in the plan for a full window, with its quantity refreshed to the
// latest computed value on every observation. Orders the plan stops asking
// for are dropped, so a master position that flickers never reaches the
// slave.
type OrderAggregator struct {
	mu      gosync.Mutex
	window  time.Duration
	gen     uint64
	pending map[string]*AggregatedOrder
	now     func() time.Time
}

// NewOrderAggregator creates an aggregator with the given coalescing window.
func NewOrderAggregator(window time.Duration) *OrderAggregator {
	return &OrderAggregator{
		window:  window,
		pending: make(map[string]*AggregatedOrder),
		now:     time.Now,
	}
}

// BeginCycle marks the start of a planning pass. Pending orders not observed
// again before the next Ready call are considered withdrawn.
func (a *OrderAggregator) BeginCycle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
}

// Observe merges a planned order into its pending batch. The quantity is
// replaced with the latest value, the first-seen time is kept.
func (a *OrderAggregator) Observe(symbol, side, action string, qty decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := orderKey(symbol, side, action)
	if existing, ok := a.pending[k]; ok {
		existing.Qty = qty
		existing.Count++
		existing.gen = a.gen
		return
	}

	a.pending[k] = &AggregatedOrder{
		Symbol:    symbol,
		Side:      side,
		Action:    action,
		Qty:       qty,
		Count:     1,
		FirstSeen: a.now(),
		gen:       a.gen,
	}
}

// Ready removes and returns the batches whose window has elapsed. Batches
// not observed in the current cycle are dropped.
func (a *OrderAggregator) Ready() []AggregatedOrder {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-a.window)

	var ready []AggregatedOrder
	for k, order := range a.pending {
		if order.gen != a.gen {
			delete(a.pending, k)
			continue
		}
		if !order.FirstSeen.After(cutoff) {
			ready = append(ready, *order)
			delete(a.pending, k)
		}
	}
	return ready
}

// Pending returns the number of batches still inside their window.
func (a *OrderAggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
