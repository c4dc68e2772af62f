// Package signal standardizes payloads shared between data ingestion and the
// trading core.
package signal

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignal reports a webhook payload the parser could not understand.
var ErrInvalidSignal = errors.New("invalid signal payload")

// Side enumerates signal and order directions.
type Side string

const (
	// Buy indicates a long bias or a buy order.
	Buy Side = "BUY"
	// Sell indicates an exit bias or a sell order.
	Sell Side = "SELL"
)

// Tick models a last-traded-price update for one instrument.
type Tick struct {
	Symbol string
	Price  float64
	Ts     time.Time
}

// Signal expresses an external BUY/SELL alert for one instrument. AtPrice is
// the alert's reference price and doubles as the seed when no live tick has
// been seen yet; zero means "not supplied".
type Signal struct {
	Symbol  string
	Side    Side
	Ts      time.Time
	AtPrice float64
	Reason  string
}

// ParseText decodes a free-text alert payload. Recognized tokens:
// "BUY"/"SELL" (or "Accepted Entry"/"Accepted Exit"), "sym=<key>" (or
// "symbol=<key>") and an optional "stopPx=<num>" (or "px="/"price=") seed
// price. Everything else in the payload is ignored.
func ParseText(raw string, now time.Time) (Signal, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Signal{}, ErrInvalidSignal
	}

	sig := Signal{Ts: now, Reason: text}

	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "ACCEPTED ENTRY"):
		sig.Side = Buy
	case strings.Contains(upper, "ACCEPTED EXIT"):
		sig.Side = Sell
	case containsWord(upper, "BUY"):
		sig.Side = Buy
	case containsWord(upper, "SELL"):
		sig.Side = Sell
	default:
		return Signal{}, ErrInvalidSignal
	}

	for _, field := range strings.Fields(text) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "sym", "symbol":
			sig.Symbol = strings.TrimSpace(value)
		case "stoppx", "px", "price":
			px, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil || px <= 0 || math.IsInf(px, 0) || math.IsNaN(px) {
				return Signal{}, ErrInvalidSignal
			}
			sig.AtPrice = px
		}
	}

	if sig.Symbol == "" {
		return Signal{}, ErrInvalidSignal
	}
	return sig, nil
}

func containsWord(upper, word string) bool {
	for rest := upper; ; {
		idx := strings.Index(rest, word)
		if idx < 0 {
			return false
		}
		before := idx == 0 || !isAlnum(rest[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(rest) || !isAlnum(rest[afterIdx])
		if before && after {
			return true
		}
		rest = rest[afterIdx:]
	}
}

func isAlnum(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
