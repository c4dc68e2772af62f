package hub

import (
	"testing"
	"time"

	"windowtrader/internal/signal"
)

func TestLastPriceCaches(t *testing.T) {
	h := New()
	if _, ok := h.LastPrice("NIFTY"); ok {
		t.Fatalf("expected no cached price before any tick")
	}
	h.Ingest("NIFTY", 101.5, time.Unix(1, 0))
	h.Ingest("NIFTY", 102.0, time.Unix(2, 0))
	if px, ok := h.LastPrice("NIFTY"); !ok || px != 102.0 {
		t.Fatalf("last price = %.2f (%v), want 102.00", px, ok)
	}
}

func TestSubscribeReplaysCachedValue(t *testing.T) {
	h := New()
	h.Ingest("NIFTY", 99.0, time.Unix(1, 0))

	var got []float64
	h.Subscribe("NIFTY", func(tk signal.Tick) { got = append(got, tk.Price) })
	if len(got) != 1 || got[0] != 99.0 {
		t.Fatalf("replay = %v, want [99]", got)
	}

	h.Ingest("NIFTY", 100.0, time.Unix(2, 0))
	if len(got) != 2 || got[1] != 100.0 {
		t.Fatalf("deliveries = %v, want [99 100]", got)
	}
}

func TestDeliveryInSubscriptionOrder(t *testing.T) {
	h := New()
	var order []string
	h.Subscribe("NIFTY", func(signal.Tick) { order = append(order, "first") })
	h.Subscribe("NIFTY", func(signal.Tick) { order = append(order, "second") })

	h.Ingest("NIFTY", 100.0, time.Unix(1, 0))

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v", order)
	}
}

func TestHandlerObservesUpdatedCache(t *testing.T) {
	h := New()
	var seen float64
	h.Subscribe("NIFTY", func(tk signal.Tick) {
		seen, _ = last(h, "NIFTY")
	})
	h.Ingest("NIFTY", 105.0, time.Unix(1, 0))
	if seen != 105.0 {
		t.Fatalf("handler saw %.2f, want the ingested price", seen)
	}
}

func last(h *Hub, sym string) (float64, bool) { return h.LastPrice(sym) }

func TestUnsubscribeDuringDeliveryKeepsSnapshot(t *testing.T) {
	h := New()
	var sub1 *Subscription
	secondSaw := 0
	sub1 = h.Subscribe("NIFTY", func(signal.Tick) { sub1.Cancel() })
	h.Subscribe("NIFTY", func(signal.Tick) { secondSaw++ })

	h.Ingest("NIFTY", 100.0, time.Unix(1, 0))
	if secondSaw != 1 {
		t.Fatalf("later subscriber missed the tick during snapshot delivery")
	}

	h.Ingest("NIFTY", 101.0, time.Unix(2, 0))
	if secondSaw != 2 {
		t.Fatalf("remaining subscriber should keep receiving")
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := New()
	n := 0
	sub := h.Subscribe("NIFTY", func(signal.Tick) { n++ })
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	sub.Cancel()

	h.Ingest("NIFTY", 100.0, time.Unix(1, 0))
	if n != 0 {
		t.Fatalf("cancelled subscriber still received %d ticks", n)
	}
}

func TestIgnoresNonPositivePrices(t *testing.T) {
	h := New()
	h.Ingest("NIFTY", 0, time.Unix(1, 0))
	h.Ingest("NIFTY", -1, time.Unix(2, 0))
	if _, ok := h.LastPrice("NIFTY"); ok {
		t.Fatalf("non-positive prices must not populate the cache")
	}
}
