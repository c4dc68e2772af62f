package machine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"windowtrader/internal/clock"
	"windowtrader/internal/hub"
	"windowtrader/internal/signal"
	"windowtrader/internal/sizing"
)

// ErrNoPrice reports a signal with no usable price under the configured
// missing-price policy.
var ErrNoPrice = errors.New("no price available")

// PricePolicy selects how signals without a price are treated when no tick
// has been cached yet.
type PricePolicy string

const (
	// PriceUseSeed dispatches with the signal's own price; a signal with
	// neither a price nor a cached tick is rejected.
	PriceUseSeed PricePolicy = "use_seed"
	// PriceWaitThenSeed defers such a signal until the first tick arrives
	// or the wait expires.
	PriceWaitThenSeed PricePolicy = "wait_then_seed"
	// PriceFail rejects such a signal outright.
	PriceFail PricePolicy = "fail"
)

// MarketGate is the open/closed predicate consulted before dispatch.
type MarketGate interface {
	IsOpen(at time.Time) bool
}

// Result describes what the router did with a signal.
type Result struct {
	Accepted bool
	Deferred bool
	Reason   string
}

// Router resolves signals to machines, gating on market hours and the
// missing-price policy.
type Router struct {
	reg             *Registry
	gate            MarketGate
	hub             *hub.Hub
	sizer           *sizing.Sizer
	clock           clock.Clock
	log             zerolog.Logger
	allowAfterHours bool
	pricePolicy     PricePolicy
	priceWait       time.Duration
}

// RouterConfig bundles the router knobs.
type RouterConfig struct {
	AllowAfterHours bool
	PricePolicy     PricePolicy
	PriceWait       time.Duration
}

// NewRouter constructs a router over the registry.
func NewRouter(reg *Registry, gate MarketGate, h *hub.Hub, sizer *sizing.Sizer, c clock.Clock, log zerolog.Logger, cfg RouterConfig) *Router {
	policy := cfg.PricePolicy
	if policy == "" {
		policy = PriceUseSeed
	}
	wait := cfg.PriceWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &Router{
		reg:             reg,
		gate:            gate,
		hub:             h,
		sizer:           sizer,
		clock:           c,
		log:             log,
		allowAfterHours: cfg.AllowAfterHours,
		pricePolicy:     policy,
		priceWait:       wait,
	}
}

// Submit validates and dispatches one signal. Market-closed signals are
// ignored with a reason rather than failed.
func (r *Router) Submit(sig signal.Signal) (Result, error) {
	if sig.Symbol == "" || (sig.Side != signal.Buy && sig.Side != signal.Sell) {
		return Result{Reason: "invalid"}, signal.ErrInvalidSignal
	}
	if _, err := r.sizer.LotSize(sig.Symbol); err != nil {
		return Result{Reason: "unknown_underlying"}, err
	}
	if !r.allowAfterHours && !r.gate.IsOpen(r.clock.Now()) {
		r.log.Info().Str("sym", sig.Symbol).Str("side", string(sig.Side)).Msg("signal ignored, market closed")
		return Result{Reason: "market_closed"}, nil
	}

	if sig.AtPrice <= 0 {
		if px, ok := r.hub.LastPrice(sig.Symbol); ok {
			sig.AtPrice = px
		} else {
			switch r.pricePolicy {
			case PriceWaitThenSeed:
				deferred := sig
				settled := false
				var sub *hub.Subscription
				timer := r.clock.AfterFunc(r.priceWait, func() {
					if !settled {
						settled = true
						sub.Cancel()
						r.dispatchDeferred(deferred)
					}
				})
				sub = r.hub.Subscribe(sig.Symbol, func(signal.Tick) {
					if !settled {
						settled = true
						timer.Stop()
						sub.Cancel()
						r.dispatchDeferred(deferred)
					}
				})
				return Result{Deferred: true, Reason: "awaiting_first_tick"}, nil
			default:
				return Result{Reason: "no_price"}, fmt.Errorf("%w: %s", ErrNoPrice, sig.Symbol)
			}
		}
	}

	r.reg.Lookup(sig.Symbol).OnSignal(sig)
	return Result{Accepted: true}, nil
}

func (r *Router) dispatchDeferred(sig signal.Signal) {
	px, ok := r.hub.LastPrice(sig.Symbol)
	if !ok {
		r.log.Warn().Str("sym", sig.Symbol).Msg("deferred signal dropped, still no tick")
		return
	}
	sig.AtPrice = px
	r.reg.Lookup(sig.Symbol).OnSignal(sig)
}
