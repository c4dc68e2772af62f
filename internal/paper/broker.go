// Package paper implements the in-memory broker used in paper mode: a limit
// order book keyed by symbol, a position keeper, realized/unrealized PnL,
// brokerage accounting, and an append-only trade log.
package paper

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"windowtrader/internal/clock"
	"windowtrader/internal/execution"
	"windowtrader/internal/hub"
	"windowtrader/internal/metrics"
	"windowtrader/internal/signal"
)

// BrokeragePolicy selects how brokerage is charged.
type BrokeragePolicy string

const (
	// PerTradeRate charges rate * closed notional on every closing sell.
	PerTradeRate BrokeragePolicy = "per_trade_rate"
	// GlobalProfitShare keeps cumulative brokerage pinned to 10% of
	// positive cumulative gross realized PnL.
	GlobalProfitShare BrokeragePolicy = "global_profit_share"
)

const profitShare = 0.10

// Trade is one line of the audit trail.
type Trade struct {
	Ts             time.Time   `json:"ts"`
	Symbol         string      `json:"symbol"`
	Side           signal.Side `json:"side"`
	Qty            int64       `json:"qty"`
	Price          float64     `json:"price"`
	RealizedDelta  float64     `json:"realized_delta"`
	BrokerageDelta float64     `json:"brokerage_delta"`
	Tag            string      `json:"tag"`
}

// SymbolPnL is the per-instrument slice of a PnL report.
type SymbolPnL struct {
	Qty           int64
	AvgPrice      float64
	RealizedGross float64
	Unrealized    float64
}

// Report is a copy-out of the broker's PnL state.
type Report struct {
	RealizedGross float64
	Brokerage     float64
	RealizedNet   float64
	Unrealized    float64
	Total         float64
	BySym         map[string]SymbolPnL
}

type position struct {
	qty           int64
	avgPrice      float64
	realizedGross float64
}

type order struct {
	execution.Order
	status execution.OrderStatus
}

// Broker is the paper broker. All mutating entry points run on the engine
// executor; the mutex exists for read-only snapshot callers.
type Broker struct {
	mu     sync.Mutex
	clock  clock.Clock
	hub    *hub.Hub
	log    zerolog.Logger
	policy BrokeragePolicy
	rate   float64

	orders    map[execution.OrderID]*order
	pending   map[string][]execution.OrderID
	subs      map[string]*hub.Subscription
	positions map[string]*position

	realizedGross float64
	brokerage     float64
	trades        []Trade
	journal       TradeJournal
}

// Option configures Broker construction.
type Option func(*Broker)

// WithJournal mirrors every trade-log entry into j as it is written.
func WithJournal(j TradeJournal) Option {
	return func(b *Broker) { b.journal = j }
}

// WithBrokerage selects the brokerage policy and its rate parameter (the
// rate is ignored by GlobalProfitShare).
func WithBrokerage(policy BrokeragePolicy, rate float64) Option {
	return func(b *Broker) {
		if policy != "" {
			b.policy = policy
		}
		if rate >= 0 {
			b.rate = rate
		}
	}
}

// NewBroker constructs a paper broker that consults h for the cached price
// and subscribes to ticks to fill queued orders.
func NewBroker(c clock.Clock, h *hub.Hub, log zerolog.Logger, opts ...Option) *Broker {
	b := &Broker{
		clock:     c,
		hub:       h,
		log:       log,
		policy:    PerTradeRate,
		orders:    make(map[execution.OrderID]*order),
		pending:   make(map[string][]execution.OrderID),
		subs:      make(map[string]*hub.Subscription),
		positions: make(map[string]*position),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func crosses(side signal.Side, price, limit float64) bool {
	if side == signal.Buy {
		return price <= limit
	}
	return price >= limit
}

// PlaceLimit accepts a limit order. If the cached price already crosses the
// limit the order fills immediately at the limit price; otherwise it queues
// until a crossing tick arrives. Paper mode never rejects a well-formed
// order.
func (b *Broker) PlaceLimit(sym string, side signal.Side, qty int64, limit float64, tag string) (execution.OrderID, error) {
	if sym == "" {
		return "", errors.New("empty symbol")
	}
	if qty <= 0 {
		return "", errors.New("quantity must be positive")
	}
	if limit <= 0 {
		return "", errors.New("limit must be positive")
	}

	id := execution.OrderID(uuid.NewString())
	o := &order{
		Order:  execution.Order{ID: id, Symbol: sym, Side: side, Qty: qty, Limit: limit, Tag: tag},
		status: execution.StatusPending,
	}

	metrics.OrdersTotal.WithLabelValues(sym, string(side)).Inc()
	b.log.Info().Str("sym", sym).Str("side", string(side)).Int64("qty", qty).
		Float64("limit", limit).Str("tag", tag).Msg("place limit")

	needSub := false
	b.mu.Lock()
	b.orders[id] = o
	if px, ok := b.hub.LastPrice(sym); ok && crosses(side, px, limit) {
		b.fillLocked(o)
	} else {
		b.pending[sym] = append(b.pending[sym], id)
		if _, ok := b.subs[sym]; !ok {
			needSub = true
		}
	}
	b.mu.Unlock()

	if needSub {
		// Subscribe outside the lock: the hub replays the cached tick
		// synchronously and the handler takes the same mutex.
		sub := b.hub.Subscribe(sym, b.onTick)
		b.mu.Lock()
		if _, ok := b.subs[sym]; ok {
			b.mu.Unlock()
			sub.Cancel()
		} else {
			b.subs[sym] = sub
			b.mu.Unlock()
		}
	}
	return id, nil
}

// onTick drains the symbol's pending queue in FIFO order, filling every
// order the tick price crosses at its own limit price.
func (b *Broker) onTick(t signal.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.pending[t.Symbol]
	if len(queue) == 0 {
		return
	}
	remaining := queue[:0]
	for _, id := range queue {
		o := b.orders[id]
		if o == nil || o.status != execution.StatusPending {
			continue
		}
		if crosses(o.Side, t.Price, o.Limit) {
			b.fillLocked(o)
		} else {
			remaining = append(remaining, id)
		}
	}
	b.pending[t.Symbol] = remaining
}

// fillLocked executes o at its limit price and updates position, PnL,
// brokerage, and the trade log. Caller holds b.mu.
func (b *Broker) fillLocked(o *order) {
	o.status = execution.StatusFilled
	now := b.clock.Now()

	pos := b.positions[o.Symbol]
	if pos == nil {
		pos = &position{}
		b.positions[o.Symbol] = pos
	}

	var realizedDelta, brokerageDelta float64
	switch o.Side {
	case signal.Buy:
		newQty := pos.qty + o.Qty
		if newQty != 0 {
			pos.avgPrice = (pos.avgPrice*float64(pos.qty) + o.Limit*float64(o.Qty)) / float64(newQty)
		}
		pos.qty = newQty
	case signal.Sell:
		closed := min64(o.Qty, pos.qty)
		if closed < 0 {
			closed = 0
		}
		if closed > 0 {
			realizedDelta = (o.Limit - pos.avgPrice) * float64(closed)
			pos.realizedGross += realizedDelta
			b.realizedGross += realizedDelta
		}
		residual := o.Qty - closed
		pos.qty -= o.Qty
		if residual > 0 {
			// Short residual; the long-only rules never produce one.
			pos.avgPrice = o.Limit
		}
		brokerageDelta = b.brokerageDeltaLocked(closed, o.Limit)
		b.brokerage += brokerageDelta
	}
	if pos.qty == 0 {
		pos.avgPrice = 0
	}

	trade := Trade{
		Ts:             now,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Qty:            o.Qty,
		Price:          o.Limit,
		RealizedDelta:  realizedDelta,
		BrokerageDelta: brokerageDelta,
		Tag:            o.Tag,
	}
	b.trades = append(b.trades, trade)

	metrics.FillsTotal.WithLabelValues(o.Symbol, string(o.Side)).Inc()
	metrics.RealizedPnL.Set(b.realizedGross)
	b.log.Info().Str("sym", o.Symbol).Str("side", string(o.Side)).Int64("qty", o.Qty).
		Float64("px", o.Limit).Str("tag", o.Tag).Float64("realized", realizedDelta).Msg("fill")

	if b.journal != nil {
		if err := b.journal.Append(trade); err != nil {
			b.log.Warn().Err(err).Msg("journal append failed")
		}
	}
}

func (b *Broker) brokerageDeltaLocked(closedQty int64, limit float64) float64 {
	switch b.policy {
	case GlobalProfitShare:
		target := 0.0
		if b.realizedGross > 0 {
			target = profitShare * b.realizedGross
		}
		return target - b.brokerage
	default:
		if closedQty <= 0 {
			return 0
		}
		return b.rate * limit * float64(closedQty)
	}
}

// Cancel removes a pending order from its queue. Orders that already filled
// or were cancelled answer NotPending.
func (b *Broker) Cancel(id execution.OrderID) execution.CancelResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.orders[id]
	if o == nil || o.status != execution.StatusPending {
		return execution.NotPending
	}
	o.status = execution.StatusCancelled
	queue := b.pending[o.Symbol]
	for i, qid := range queue {
		if qid == id {
			b.pending[o.Symbol] = append(queue[:i:i], queue[i+1:]...)
			break
		}
	}
	b.log.Info().Str("sym", o.Symbol).Str("tag", o.Tag).Msg("order cancelled")
	return execution.Cancelled
}

// Status reports the lifecycle state of an order.
func (b *Broker) Status(id execution.OrderID) execution.OrderStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o := b.orders[id]; o != nil {
		return o.status
	}
	return execution.StatusUnknown
}

// OpenQty returns the signed open quantity for sym.
func (b *Broker) OpenQty(sym string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos := b.positions[sym]; pos != nil {
		return pos.qty
	}
	return 0
}

// AvgPrice returns the weighted average entry price for sym (0 when flat).
func (b *Broker) AvgPrice(sym string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos := b.positions[sym]; pos != nil {
		return pos.avgPrice
	}
	return 0
}

// PnL marks open positions against the hub cache and returns a full report.
func (b *Broker) PnL() Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	report := Report{
		RealizedGross: b.realizedGross,
		Brokerage:     b.brokerage,
		RealizedNet:   b.realizedGross - b.brokerage,
		BySym:         make(map[string]SymbolPnL, len(b.positions)),
	}
	for sym, pos := range b.positions {
		var unrealized float64
		if pos.qty != 0 {
			if mark, ok := b.hub.LastPrice(sym); ok {
				unrealized = (mark - pos.avgPrice) * float64(pos.qty)
			}
		}
		report.Unrealized += unrealized
		report.BySym[sym] = SymbolPnL{
			Qty:           pos.qty,
			AvgPrice:      pos.avgPrice,
			RealizedGross: pos.realizedGross,
			Unrealized:    unrealized,
		}
	}
	report.Total = report.RealizedNet + report.Unrealized
	return report
}

// Trades returns a copy of the audit trail.
func (b *Broker) Trades() []Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
