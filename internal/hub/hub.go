// Package hub caches the latest traded price per instrument and fans ticks
// out to per-symbol subscribers.
package hub

import (
	"sync"
	"time"

	"windowtrader/internal/metrics"
	"windowtrader/internal/signal"
)

// Handler receives ticks for a subscribed symbol.
type Handler func(signal.Tick)

// Subscription identifies one registered handler. Cancel is idempotent.
type Subscription struct {
	hub    *Hub
	symbol string
	id     uint64
}

type entry struct {
	id uint64
	fn Handler
}

// Hub owns the last-price cache and the subscriber lists. Delivery is
// serialized by the caller (the engine executor); the internal mutex guards
// the cache and subscriber lists so read-only LastPrice callers on other
// goroutines stay safe.
type Hub struct {
	mu     sync.Mutex
	last   map[string]signal.Tick
	subs   map[string][]entry
	nextID uint64
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		last: make(map[string]signal.Tick),
		subs: make(map[string][]entry),
	}
}

// Ingest updates the cache for the tick's symbol, then delivers the tick to
// every subscriber in subscription order. The subscriber list is snapshotted
// before delivery, so handlers that subscribe or unsubscribe mid-tick do not
// disturb the current fan-out. Non-positive prices are dropped.
func (h *Hub) Ingest(sym string, price float64, ts time.Time) {
	if sym == "" || price <= 0 {
		return
	}
	tick := signal.Tick{Symbol: sym, Price: price, Ts: ts}

	h.mu.Lock()
	h.last[sym] = tick
	snapshot := make([]entry, len(h.subs[sym]))
	copy(snapshot, h.subs[sym])
	h.mu.Unlock()

	metrics.TicksTotal.WithLabelValues(sym).Inc()

	for _, e := range snapshot {
		e.fn(tick)
	}
}

// LastPrice returns the cached price for sym, if any tick has been seen.
func (h *Hub) LastPrice(sym string) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tick, ok := h.last[sym]
	return tick.Price, ok
}

// LastTick returns the full cached tick for sym.
func (h *Hub) LastTick(sym string) (signal.Tick, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tick, ok := h.last[sym]
	return tick, ok
}

// Subscribe registers fn for sym. If a cached tick exists it is replayed to
// fn synchronously before Subscribe returns.
func (h *Hub) Subscribe(sym string, fn Handler) *Subscription {
	h.mu.Lock()
	h.nextID++
	sub := &Subscription{hub: h, symbol: sym, id: h.nextID}
	h.subs[sym] = append(h.subs[sym], entry{id: sub.id, fn: fn})
	cached, ok := h.last[sym]
	h.mu.Unlock()

	if ok {
		fn(cached)
	}
	return sub
}

// Unsubscribe removes the subscription; unknown or already-cancelled
// subscriptions are ignored.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil || sub.hub != h {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[sub.symbol]
	for i, e := range list {
		if e.id == sub.id {
			h.subs[sub.symbol] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}

// Cancel is shorthand for Unsubscribe on the owning hub.
func (s *Subscription) Cancel() {
	if s != nil {
		s.hub.Unsubscribe(s)
	}
}
