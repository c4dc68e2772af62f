// Package engine runs the single-threaded executor that owns the tick hub,
// the paper broker, and the machine registry. Tick delivery, timer firing,
// and signal dispatch are all serialized through one event queue.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"windowtrader/internal/clock"
	"windowtrader/internal/hub"
	"windowtrader/internal/machine"
	"windowtrader/internal/paper"
	"windowtrader/internal/signal"
	"windowtrader/internal/sizing"
)

// Engine owns the trading core's shared state. External goroutines interact
// only through IngestTick, SubmitSignal, and the snapshot copy-outs.
type Engine struct {
	events chan func()
	log    zerolog.Logger

	hub    *hub.Hub
	broker *paper.Broker
	router *machine.Router
	reg    *machine.Registry
}

// Options configures engine construction.
type Options struct {
	Clock     clock.Clock
	Gate      machine.MarketGate
	Machine   machine.Config
	Router    machine.RouterConfig
	Capital   float64
	LotSizes  map[string]int64
	Brokerage paper.BrokeragePolicy
	Rate      float64
	Snapshots machine.SnapshotSink
	Seeds     []machine.Snapshot
	Journal   paper.TradeJournal
	QueueSize int
}

// New wires the hub, broker, sizer, registry, and router together. Timer
// callbacks are marshalled onto the event queue so machine code never runs
// off the executor.
func New(opts Options, log zerolog.Logger) *Engine {
	queue := opts.QueueSize
	if queue <= 0 {
		queue = 4096
	}
	e := &Engine{
		events: make(chan func(), queue),
		log:    log,
		hub:    hub.New(),
	}

	base := opts.Clock
	if base == nil {
		base = clock.System()
	}
	looped := &loopClock{inner: base, submit: e.enqueue}

	var brokerOpts []paper.Option
	brokerOpts = append(brokerOpts, paper.WithBrokerage(opts.Brokerage, opts.Rate))
	if opts.Journal != nil {
		brokerOpts = append(brokerOpts, paper.WithJournal(opts.Journal))
	}
	e.broker = paper.NewBroker(looped, e.hub, log, brokerOpts...)

	sizer := sizing.New(opts.Capital, opts.LotSizes, e.broker)
	e.reg = machine.NewRegistry(opts.Machine, machine.Deps{
		Clock:     looped,
		Hub:       e.hub,
		Broker:    e.broker,
		Sizer:     sizer,
		Log:       log,
		Snapshots: opts.Snapshots,
	}, opts.Seeds)
	e.router = machine.NewRouter(e.reg, opts.Gate, e.hub, sizer, looped, log, opts.Router)
	return e
}

// Run processes events until the context is cancelled. A panic inside a
// handler is logged with context and the event is treated as consumed.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopped")
			return
		case ev := <-e.events:
			e.safely(ev)
		}
	}
}

func (e *Engine) safely(ev func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("handler panicked, event consumed")
		}
	}()
	ev()
}

func (e *Engine) enqueue(ev func()) {
	e.events <- ev
}

// IngestTick queues a market tick for delivery.
func (e *Engine) IngestTick(t signal.Tick) {
	e.enqueue(func() { e.hub.Ingest(t.Symbol, t.Price, t.Ts) })
}

// SubmitSignal queues a signal and blocks until the executor has dispatched
// it, returning the router's verdict.
func (e *Engine) SubmitSignal(sig signal.Signal) (machine.Result, error) {
	type outcome struct {
		res machine.Result
		err error
	}
	done := make(chan outcome, 1)
	e.enqueue(func() {
		res, err := e.router.Submit(sig)
		done <- outcome{res, err}
	})
	out := <-done
	return out.res, out.err
}

// PnL returns a point-in-time copy of the broker's PnL report.
func (e *Engine) PnL() paper.Report {
	done := make(chan paper.Report, 1)
	e.enqueue(func() { done <- e.broker.PnL() })
	return <-done
}

// Trades returns a copy of the audit trail.
func (e *Engine) Trades() []paper.Trade {
	done := make(chan []paper.Trade, 1)
	e.enqueue(func() { done <- e.broker.Trades() })
	return <-done
}

// loopClock marshals timer callbacks onto the engine queue; a timer armed
// during event E never runs before E completes.
type loopClock struct {
	inner  clock.Clock
	submit func(func())
}

func (c *loopClock) Now() time.Time { return c.inner.Now() }

func (c *loopClock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	return c.inner.AfterFunc(d, func() { c.submit(fn) })
}
