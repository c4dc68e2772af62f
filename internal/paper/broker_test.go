package paper

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"windowtrader/internal/clock"
	"windowtrader/internal/execution"
	"windowtrader/internal/hub"
	"windowtrader/internal/signal"
)

func newBroker(t *testing.T, opts ...Option) (*Broker, *hub.Hub, *clock.VirtualClock) {
	t.Helper()
	vclock := clock.NewVirtual(time.Date(2026, time.August, 3, 10, 0, 0, 0, time.UTC))
	h := hub.New()
	return NewBroker(vclock, h, zerolog.Nop(), opts...), h, vclock
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestImmediateFillOnCrossingCache(t *testing.T) {
	b, h, _ := newBroker(t)
	h.Ingest("NIFTY", 100.0, time.Unix(1, 0))

	id, err := b.PlaceLimit("NIFTY", signal.Buy, 75, 100.50, "entry")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if got := b.Status(id); got != execution.StatusFilled {
		t.Fatalf("status = %v, want filled", got)
	}
	if got := b.OpenQty("NIFTY"); got != 75 {
		t.Fatalf("open qty = %d, want 75", got)
	}
	if got := b.AvgPrice("NIFTY"); !almostEqual(got, 100.50) {
		t.Fatalf("avg = %.2f, want the limit price", got)
	}
}

func TestQueuedOrderFillsOnCrossingTick(t *testing.T) {
	b, h, _ := newBroker(t)
	h.Ingest("NIFTY", 101.0, time.Unix(1, 0))

	id, _ := b.PlaceLimit("NIFTY", signal.Buy, 75, 100.50, "entry")
	if got := b.Status(id); got != execution.StatusPending {
		t.Fatalf("status = %v, want pending", got)
	}

	h.Ingest("NIFTY", 100.60, time.Unix(2, 0))
	if got := b.Status(id); got != execution.StatusPending {
		t.Fatalf("tick above the limit must not fill a buy")
	}

	h.Ingest("NIFTY", 100.40, time.Unix(3, 0))
	if got := b.Status(id); got != execution.StatusFilled {
		t.Fatalf("status = %v, want filled after crossing tick", got)
	}
	trades := b.Trades()
	if len(trades) != 1 || !almostEqual(trades[0].Price, 100.50) {
		t.Fatalf("fill must happen at the limit price, got %+v", trades)
	}
}

func TestPendingFillsFIFO(t *testing.T) {
	b, h, _ := newBroker(t)
	h.Ingest("NIFTY", 105.0, time.Unix(1, 0))

	first, _ := b.PlaceLimit("NIFTY", signal.Buy, 10, 101.0, "first")
	second, _ := b.PlaceLimit("NIFTY", signal.Buy, 10, 102.0, "second")

	h.Ingest("NIFTY", 100.0, time.Unix(2, 0))

	trades := b.Trades()
	if len(trades) != 2 {
		t.Fatalf("expected both pending orders to fill, got %d", len(trades))
	}
	if trades[0].Tag != "first" || trades[1].Tag != "second" {
		t.Fatalf("fills out of FIFO order: %v then %v", trades[0].Tag, trades[1].Tag)
	}
	if b.Status(first) != execution.StatusFilled || b.Status(second) != execution.StatusFilled {
		t.Fatalf("both orders should be filled")
	}
}

func TestSellRealizesAgainstAverage(t *testing.T) {
	b, h, _ := newBroker(t)
	h.Ingest("NIFTY", 100.0, time.Unix(1, 0))

	_, _ = b.PlaceLimit("NIFTY", signal.Buy, 50, 100.0, "e1")
	_, _ = b.PlaceLimit("NIFTY", signal.Buy, 50, 102.0, "e2") // avg 101

	h.Ingest("NIFTY", 103.0, time.Unix(2, 0))
	_, _ = b.PlaceLimit("NIFTY", signal.Sell, 100, 103.0, "exit")

	report := b.PnL()
	if !almostEqual(report.RealizedGross, 200.0) {
		t.Fatalf("realized gross = %.2f, want (103-101)*100", report.RealizedGross)
	}
	if got := b.OpenQty("NIFTY"); got != 0 {
		t.Fatalf("open qty = %d, want flat", got)
	}
	if got := b.AvgPrice("NIFTY"); got != 0 {
		t.Fatalf("avg must reset to 0 when flat, got %.2f", got)
	}
}

func TestTradeLogBalancesReport(t *testing.T) {
	b, h, _ := newBroker(t, WithBrokerage(PerTradeRate, 0.001))
	h.Ingest("NIFTY", 100.0, time.Unix(1, 0))

	_, _ = b.PlaceLimit("NIFTY", signal.Buy, 75, 100.0, "entry")
	h.Ingest("NIFTY", 103.0, time.Unix(2, 0))
	_, _ = b.PlaceLimit("NIFTY", signal.Sell, 75, 103.0, "exit")

	var realized, brokerage float64
	for _, trade := range b.Trades() {
		realized += trade.RealizedDelta
		brokerage += trade.BrokerageDelta
	}
	report := b.PnL()
	if !almostEqual(realized, report.RealizedGross) {
		t.Fatalf("sum of realized deltas %.4f != report gross %.4f", realized, report.RealizedGross)
	}
	if !almostEqual(brokerage, report.Brokerage) {
		t.Fatalf("sum of brokerage deltas %.4f != report brokerage %.4f", brokerage, report.Brokerage)
	}
	if !almostEqual(report.RealizedNet, report.RealizedGross-report.Brokerage) {
		t.Fatalf("net must be gross minus brokerage")
	}
}

func TestPerTradeRateChargesClosedNotional(t *testing.T) {
	b, h, _ := newBroker(t, WithBrokerage(PerTradeRate, 0.001))
	h.Ingest("NIFTY", 100.0, time.Unix(1, 0))

	_, _ = b.PlaceLimit("NIFTY", signal.Buy, 75, 100.0, "entry")
	h.Ingest("NIFTY", 99.0, time.Unix(2, 0))
	_, _ = b.PlaceLimit("NIFTY", signal.Sell, 75, 99.0, "exit")

	// Charged on the losing exit too: 0.001 * 99 * 75.
	report := b.PnL()
	if !almostEqual(report.Brokerage, 7.425) {
		t.Fatalf("brokerage = %.4f, want 7.425", report.Brokerage)
	}
}

func TestGlobalProfitSharePinsToPositiveGross(t *testing.T) {
	b, h, _ := newBroker(t, WithBrokerage(GlobalProfitShare, 0))
	h.Ingest("NIFTY", 100.0, time.Unix(1, 0))

	_, _ = b.PlaceLimit("NIFTY", signal.Buy, 100, 100.0, "e")
	h.Ingest("NIFTY", 110.0, time.Unix(2, 0))
	_, _ = b.PlaceLimit("NIFTY", signal.Sell, 100, 110.0, "x") // gross 1000

	report := b.PnL()
	if !almostEqual(report.Brokerage, 100.0) {
		t.Fatalf("brokerage = %.2f, want 10%% of gross", report.Brokerage)
	}

	// A subsequent loss shrinks cumulative gross; the share follows it down.
	h.Ingest("NIFTY", 110.0, time.Unix(3, 0))
	_, _ = b.PlaceLimit("NIFTY", signal.Buy, 100, 110.0, "e2")
	h.Ingest("NIFTY", 104.0, time.Unix(4, 0))
	_, _ = b.PlaceLimit("NIFTY", signal.Sell, 100, 104.0, "x2") // gross 1000-600=400

	report = b.PnL()
	if !almostEqual(report.Brokerage, 40.0) {
		t.Fatalf("brokerage = %.2f, want 40", report.Brokerage)
	}
}

func TestCancelSemantics(t *testing.T) {
	b, h, _ := newBroker(t)
	h.Ingest("NIFTY", 105.0, time.Unix(1, 0))

	id, _ := b.PlaceLimit("NIFTY", signal.Buy, 10, 100.0, "entry")
	if got := b.Cancel(id); got != execution.Cancelled {
		t.Fatalf("cancel pending = %v, want Cancelled", got)
	}
	if got := b.Cancel(id); got != execution.NotPending {
		t.Fatalf("second cancel = %v, want NotPending", got)
	}

	// A cancelled order never fills.
	h.Ingest("NIFTY", 99.0, time.Unix(2, 0))
	if got := b.Status(id); got != execution.StatusCancelled {
		t.Fatalf("status = %v, want cancelled", got)
	}
	if len(b.Trades()) != 0 {
		t.Fatalf("cancelled order produced a trade")
	}
}

func TestUnrealizedMarksAgainstCache(t *testing.T) {
	b, h, _ := newBroker(t)
	h.Ingest("NIFTY", 100.0, time.Unix(1, 0))
	_, _ = b.PlaceLimit("NIFTY", signal.Buy, 75, 100.0, "entry")

	h.Ingest("NIFTY", 102.0, time.Unix(2, 0))
	report := b.PnL()
	if !almostEqual(report.Unrealized, 150.0) {
		t.Fatalf("unrealized = %.2f, want (102-100)*75", report.Unrealized)
	}
	sym := report.BySym["NIFTY"]
	if sym.Qty != 75 || !almostEqual(sym.Unrealized, 150.0) {
		t.Fatalf("per-sym report = %+v", sym)
	}
}

func TestRejectsMalformedOrders(t *testing.T) {
	b, _, _ := newBroker(t)
	if _, err := b.PlaceLimit("NIFTY", signal.Buy, 0, 100, "t"); err == nil {
		t.Fatalf("zero qty must be rejected")
	}
	if _, err := b.PlaceLimit("NIFTY", signal.Buy, 10, 0, "t"); err == nil {
		t.Fatalf("zero limit must be rejected")
	}
	if _, err := b.PlaceLimit("", signal.Buy, 10, 100, "t"); err == nil {
		t.Fatalf("empty symbol must be rejected")
	}
}
