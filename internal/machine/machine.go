// Package machine implements the per-instrument trading state machine:
// 60-second SELL and BUY windows driven by signals, ticks, and window-expiry
// timers, producing limit order intents against the broker.
package machine

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"windowtrader/internal/clock"
	"windowtrader/internal/execution"
	"windowtrader/internal/hub"
	"windowtrader/internal/metrics"
	"windowtrader/internal/signal"
	"windowtrader/internal/sizing"
)

// State is the coarse phase of a machine.
type State int

const (
	StateIdle State = iota
	StateBuyWindow
	StateSellWindow
)

func (s State) String() string {
	switch s {
	case StateBuyWindow:
		return "BUY_WINDOW"
	case StateSellWindow:
		return "SELL_WINDOW"
	default:
		return "IDLE"
	}
}

// Order intent tags recorded on the audit trail.
const (
	TagBuySignalPreWindow       = "BUY_SIGNAL_PREWINDOW"
	TagBuySignalForcedAnchor    = "BUY_SIGNAL_FORCED_ANCHOR"
	TagBuyWindowStopOut         = "BUY_WINDOW_STOP_OUT"
	TagBuyWindowBreakoutReenter = "BUY_WINDOW_BREAKOUT_REENTER"
	TagSellInPosImmediateExit   = "SELL_INPOS_IMMEDIATE_EXIT"
	TagSellFlatBreakout         = "SELL_FLAT_BREAKOUT"
)

// Config carries the tunables a machine needs.
type Config struct {
	Window         time.Duration
	EntryOffset    float64
	ExitOffset     float64
	StopLossPoints float64
	PriceIncrement float64
	EntryTTL       time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	if c.EntryOffset == 0 {
		c.EntryOffset = 0.5
	}
	if c.ExitOffset == 0 {
		c.ExitOffset = 0.5
	}
	if c.StopLossPoints == 0 {
		c.StopLossPoints = 0.5
	}
	if c.PriceIncrement <= 0 {
		c.PriceIncrement = 0.05
	}
	return c
}

// SnapshotSink persists machine snapshots on every transition.
type SnapshotSink interface {
	Save(Snapshot) error
}

// Deps are the collaborators a machine calls into. All calls happen on the
// engine executor.
type Deps struct {
	Clock     clock.Clock
	Hub       *hub.Hub
	Broker    execution.Broker
	Sizer     *sizing.Sizer
	Log       zerolog.Logger
	Snapshots SnapshotSink
}

// Machine is the per-symbol state machine. Not safe for concurrent use; the
// engine serializes every entry point.
type Machine struct {
	sym  string
	cfg  Config
	deps Deps
	log  zerolog.Logger

	state        State
	windowID     uint64
	windowEndsAt time.Time
	windowAnchor float64
	timer        clock.Timer
	sub          *hub.Subscription
	arming       bool

	savedBuyLTP         float64
	savedLastBuyLTP     float64
	savedSellLTP        float64
	sellStartAnchor     float64
	sellStartSet        bool
	pendingBuyAfterSell bool
	exitedThisWindow    bool
	silenced            bool
	silencedUntil       time.Time
	sellHadPos          bool

	entryOrderID execution.OrderID
	entryTimer   clock.Timer
}

// New constructs a machine for sym.
func New(sym string, cfg Config, deps Deps) *Machine {
	m := &Machine{
		sym:  sym,
		cfg:  cfg.withDefaults(),
		deps: deps,
		log:  deps.Log.With().Str("sym", sym).Logger(),
	}
	return m
}

// Symbol returns the instrument key this machine owns.
func (m *Machine) Symbol() string { return m.sym }

// State reports the externally visible phase. A stopped-out window that is
// merely waiting for its deadline (silenced) reads as idle.
func (m *Machine) State() State {
	if m.state == StateBuyWindow && m.silenced {
		return StateIdle
	}
	return m.state
}

// WindowID returns the current window token.
func (m *Machine) WindowID() uint64 { return m.windowID }

// SavedBuyLTP returns the entry anchor currently defended.
func (m *Machine) SavedBuyLTP() float64 { return m.savedBuyLTP }

// SellStartAnchor returns the anchor captured at the last SELL, if set.
func (m *Machine) SellStartAnchor() (float64, bool) {
	return m.sellStartAnchor, m.sellStartSet
}

// OnSignal applies a BUY or SELL alert to the machine.
func (m *Machine) OnSignal(sig signal.Signal) {
	switch sig.Side {
	case signal.Buy:
		m.enterBuy(sig.AtPrice, false, TagBuySignalPreWindow)
	case signal.Sell:
		m.onSell(sig.AtPrice)
	}
}

// onSell opens a SELL window anchored on the alert price. The first BUY
// after this SELL adopts its price as the sell-start anchor.
func (m *Machine) onSell(atPrice float64) {
	m.savedSellLTP = atPrice
	m.pendingBuyAfterSell = true
	m.log.Info().Float64("px", atPrice).Msg("sell signal")
	m.openSellWindow()
	m.persist()
}

func (m *Machine) openSellWindow() {
	m.closeWindow()
	m.windowID++
	id := m.windowID
	m.state = StateSellWindow
	m.exitedThisWindow = false
	m.sellHadPos = m.deps.Broker.OpenQty(m.sym) > 0
	m.windowEndsAt = m.deps.Clock.Now().Add(m.cfg.Window)
	m.timer = m.deps.Clock.AfterFunc(m.cfg.Window, func() { m.onWindowExpired(id) })
	m.subscribeTicks(id, m.onSellTick)
	metrics.WindowsOpenedTotal.WithLabelValues("sell").Inc()
	m.log.Debug().Uint64("window_id", id).Bool("had_pos", m.sellHadPos).Msg("sell window armed")
}

func (m *Machine) onSellTick(px float64) {
	if m.exitedThisWindow {
		return
	}
	if m.sellHadPos {
		qty := m.deps.Broker.OpenQty(m.sym)
		m.exitedThisWindow = true
		if qty <= 0 {
			return
		}
		m.placeExit(qty, m.round(px-m.cfg.ExitOffset), TagSellInPosImmediateExit)
		return
	}

	// Flat: breakout above the sell anchor flips into a BUY window with a
	// forced anchor one point above; a trade below the sell-start anchor
	// re-enters at a discount.
	if px > m.round(m.savedSellLTP+m.cfg.EntryOffset) {
		anchor := m.round(m.savedSellLTP + 1.0)
		m.log.Info().Float64("px", px).Float64("anchor", anchor).Msg("sell window breakout")
		m.closeWindow()
		m.enterBuy(anchor, true, TagSellFlatBreakout)
		return
	}
	if m.sellStartSet && px < m.sellStartAnchor {
		anchor := m.sellStartAnchor
		m.log.Info().Float64("px", px).Float64("anchor", anchor).Msg("sell window discount re-entry")
		m.closeWindow()
		m.enterBuy(anchor, true, TagBuySignalForcedAnchor)
	}
}

// enterBuy handles a BUY signal or a forced-anchor flip out of a SELL
// window. Forced entries bypass stop-out silencing; plain signals inside the
// silenced stretch are dropped until the window's original deadline.
func (m *Machine) enterBuy(atPrice float64, forced bool, tag string) {
	now := m.deps.Clock.Now()
	if !forced && now.Before(m.silencedUntil) {
		m.log.Info().Float64("px", atPrice).Time("until", m.silencedUntil).Msg("buy signal silenced")
		return
	}
	if atPrice <= 0 {
		m.log.Warn().Msg("buy with no usable price dropped")
		return
	}

	anchor := atPrice
	m.savedBuyLTP = anchor
	m.savedLastBuyLTP = anchor
	if m.pendingBuyAfterSell {
		m.sellStartAnchor = atPrice
		m.sellStartSet = true
		m.pendingBuyAfterSell = false
	}

	qty, err := m.deps.Sizer.QtyForEntry(m.sym, anchor)
	if err != nil {
		m.log.Error().Err(err).Msg("entry sizing failed, intent dropped")
	} else {
		m.placeEntry(qty, m.round(anchor+m.cfg.EntryOffset), tag)
	}

	if m.state == StateIdle || forced {
		m.openBuyWindow(anchor)
	}
	m.persist()
}

func (m *Machine) openBuyWindow(anchor float64) {
	m.closeWindow()
	m.windowID++
	id := m.windowID
	m.state = StateBuyWindow
	m.exitedThisWindow = false
	m.silenced = false
	m.windowAnchor = anchor
	m.windowEndsAt = m.deps.Clock.Now().Add(m.cfg.Window)
	m.timer = m.deps.Clock.AfterFunc(m.cfg.Window, func() { m.onWindowExpired(id) })
	m.subscribeTicks(id, m.onBuyTick)
	metrics.WindowsOpenedTotal.WithLabelValues("buy").Inc()
	m.log.Debug().Uint64("window_id", id).Float64("anchor", anchor).Msg("buy window armed")
}

// onBuyTick evaluates the window rules in order: stop-out, flat breakout,
// hold. At most one exit per window.
func (m *Machine) onBuyTick(px float64) {
	if m.exitedThisWindow {
		return
	}
	anchor := m.windowAnchor
	open := m.deps.Broker.OpenQty(m.sym)

	if open > 0 && px < m.round(anchor-m.cfg.StopLossPoints) {
		m.placeExit(open, m.round(px-m.cfg.ExitOffset), TagBuyWindowStopOut)
		m.exitedThisWindow = true
		m.silenced = true
		m.silencedUntil = m.windowEndsAt
		m.unsubscribeTicks()
		metrics.StopOutsTotal.WithLabelValues(m.sym).Inc()
		m.log.Info().Float64("px", px).Time("silenced_until", m.silencedUntil).Msg("stop out")
		m.persist()
		return
	}

	if open == 0 && px > anchor {
		qty, err := m.deps.Sizer.QtyForEntry(m.sym, px)
		if err != nil {
			m.log.Error().Err(err).Msg("breakout sizing failed, intent dropped")
			return
		}
		m.placeEntry(qty, m.round(px+m.cfg.EntryOffset), TagBuyWindowBreakoutReenter)
		m.openBuyWindow(anchor)
		m.persist()
	}
}

// onWindowExpired runs when the window deadline passes. Late callbacks from
// superseded windows no-op on the id check.
func (m *Machine) onWindowExpired(id uint64) {
	if id != m.windowID {
		return
	}
	m.timer = nil

	switch m.state {
	case StateSellWindow:
		// No trigger fired: restart the SELL window anchored on the
		// current cached price.
		if px, ok := m.deps.Hub.LastPrice(m.sym); ok {
			m.savedSellLTP = px
		}
		m.log.Debug().Float64("anchor", m.savedSellLTP).Msg("sell window rolled")
		m.openSellWindow()
		m.persist()

	case StateBuyWindow:
		anchor := m.windowAnchor
		m.silenced = false
		if m.deps.Broker.OpenQty(m.sym) == 0 {
			if px, ok := m.deps.Hub.LastPrice(m.sym); ok && px > anchor {
				qty, err := m.deps.Sizer.QtyForEntry(m.sym, px)
				if err == nil {
					m.placeEntry(qty, m.round(px+m.cfg.EntryOffset), TagBuyWindowBreakoutReenter)
					m.openBuyWindow(anchor)
					m.persist()
					return
				}
				m.log.Error().Err(err).Msg("expiry sizing failed")
			}
		}
		m.toIdle()
	}
}

func (m *Machine) placeEntry(qty int64, limit float64, tag string) {
	id, err := m.deps.Broker.PlaceLimit(m.sym, signal.Buy, qty, limit, tag)
	if err != nil {
		m.log.Error().Err(err).Str("tag", tag).Msg("entry placement failed, intent dropped")
		return
	}
	m.entryOrderID = id
	if m.entryTimer != nil {
		m.entryTimer.Stop()
		m.entryTimer = nil
	}
	if m.cfg.EntryTTL > 0 && m.deps.Broker.Status(id) == execution.StatusPending {
		m.entryTimer = m.deps.Clock.AfterFunc(m.cfg.EntryTTL, func() { m.onEntryTTL(id) })
	}
}

// onEntryTTL cancels an entry that is still pending past its TTL. A
// NotPending answer means the order filled in the meantime; the position
// already reflects it.
func (m *Machine) onEntryTTL(id execution.OrderID) {
	if m.entryOrderID != id {
		return
	}
	if m.deps.Broker.Status(id) != execution.StatusPending {
		return
	}
	if m.deps.Broker.Cancel(id) == execution.NotPending {
		m.log.Info().Msg("entry ttl raced a fill, keeping position")
		return
	}
	m.log.Info().Msg("stale entry cancelled")
}

func (m *Machine) placeExit(qty int64, limit float64, tag string) {
	if _, err := m.deps.Broker.PlaceLimit(m.sym, signal.Sell, qty, limit, tag); err != nil {
		m.log.Error().Err(err).Str("tag", tag).Msg("exit placement failed, intent dropped")
	}
}

func (m *Machine) subscribeTicks(id uint64, fn func(px float64)) {
	m.arming = true
	m.sub = m.deps.Hub.Subscribe(m.sym, func(t signal.Tick) {
		// The hub replays the cached tick during Subscribe; window rules
		// only consume ticks that arrive after the window is armed.
		if m.arming || m.windowID != id {
			return
		}
		fn(t.Price)
	})
	m.arming = false
}

func (m *Machine) unsubscribeTicks() {
	if m.sub != nil {
		m.sub.Cancel()
		m.sub = nil
	}
}

// closeWindow cancels the outstanding timer and tick subscription and drops
// back to idle. Safe to call when already idle.
func (m *Machine) closeWindow() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.unsubscribeTicks()
	m.state = StateIdle
}

func (m *Machine) toIdle() {
	m.closeWindow()
	m.log.Debug().Msg("idle")
	m.persist()
}

func (m *Machine) round(px float64) float64 {
	return RoundTo(px, m.cfg.PriceIncrement)
}

// RoundTo rounds px to the venue increment, normalized to two decimals.
func RoundTo(px, incr float64) float64 {
	if incr <= 0 {
		incr = 0.05
	}
	v := math.Round(px/incr) * incr
	return math.Round(v*100) / 100
}
