// Package backtest replays historical candles and signals through the same
// machine, hub, and paper broker used live, on a virtual clock.
package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"windowtrader/internal/signal"
)

// TickStyle selects how a 1-minute candle becomes synthetic ticks.
type TickStyle string

const (
	// StyleClose emits one tick per candle at t+59s with the close price.
	StyleClose TickStyle = "close"
	// StyleOHLCPath emits four ticks at t+10ms, t+20ms, t+30ms, t+59s with
	// prices o, l, h, c.
	StyleOHLCPath TickStyle = "ohlcPath"
)

// Candle is one historical 1-minute bar.
type Candle struct {
	Symbol string    `json:"symbol"`
	T      time.Time `json:"t"`
	O      float64   `json:"o"`
	H      float64   `json:"h"`
	L      float64   `json:"l"`
	C      float64   `json:"c"`
}

// Expand converts candles into synthetic ticks under the given style, sorted
// by timestamp.
func Expand(candles []Candle, style TickStyle) []signal.Tick {
	var ticks []signal.Tick
	for _, candle := range candles {
		switch style {
		case StyleOHLCPath:
			ticks = append(ticks,
				signal.Tick{Symbol: candle.Symbol, Price: candle.O, Ts: candle.T.Add(10 * time.Millisecond)},
				signal.Tick{Symbol: candle.Symbol, Price: candle.L, Ts: candle.T.Add(20 * time.Millisecond)},
				signal.Tick{Symbol: candle.Symbol, Price: candle.H, Ts: candle.T.Add(30 * time.Millisecond)},
				signal.Tick{Symbol: candle.Symbol, Price: candle.C, Ts: candle.T.Add(59 * time.Second)},
			)
		default:
			ticks = append(ticks, signal.Tick{Symbol: candle.Symbol, Price: candle.C, Ts: candle.T.Add(59 * time.Second)})
		}
	}
	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].Ts.Before(ticks[j].Ts) })
	return ticks
}

// LoadCandles reads a JSON array of candles from disk.
func LoadCandles(path string) ([]Candle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candles: %w", err)
	}
	var candles []Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}
	return candles, nil
}

// LoadSignals reads a JSON array of signals from disk.
func LoadSignals(path string) ([]signal.Signal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signals: %w", err)
	}
	var raw []struct {
		Symbol  string    `json:"symbol"`
		Side    string    `json:"side"`
		Ts      time.Time `json:"ts"`
		AtPrice float64   `json:"at_price"`
		Reason  string    `json:"reason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	out := make([]signal.Signal, 0, len(raw))
	for _, r := range raw {
		side := signal.Side(r.Side)
		if side != signal.Buy && side != signal.Sell {
			return nil, fmt.Errorf("%w: side %q", signal.ErrInvalidSignal, r.Side)
		}
		out = append(out, signal.Signal{Symbol: r.Symbol, Side: side, Ts: r.Ts, AtPrice: r.AtPrice, Reason: r.Reason})
	}
	return out, nil
}
