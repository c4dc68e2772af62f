// Package sizing derives entry quantities from a capital budget and the
// instrument lot table.
package sizing

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownUnderlying reports a symbol whose underlying has no lot size.
var ErrUnknownUnderlying = errors.New("unknown underlying")

// PositionReader exposes the open quantity the sizer needs for the no-flip
// rule. The paper broker satisfies it.
type PositionReader interface {
	OpenQty(sym string) int64
}

// Sizer turns prices into order quantities. When a position is open the open
// size is reused so exits and scale-ups never flip the book.
type Sizer struct {
	capital   float64
	lots      map[string]int64
	positions PositionReader
}

// New builds a sizer over the configured per-entry capital budget and the
// underlying → lot size table.
func New(capital float64, lots map[string]int64, positions PositionReader) *Sizer {
	table := make(map[string]int64, len(lots))
	for underlying, lot := range lots {
		table[strings.ToUpper(strings.TrimSpace(underlying))] = lot
	}
	return &Sizer{capital: capital, lots: table, positions: positions}
}

// QtyForEntry returns the quantity for a new entry at price. With an open
// position the absolute open size is returned unchanged; otherwise the
// budget buys max(1, floor(capital/(price*lot))) whole lots.
func (s *Sizer) QtyForEntry(sym string, price float64) (int64, error) {
	if open := s.positions.OpenQty(sym); open != 0 {
		if open < 0 {
			return -open, nil
		}
		return open, nil
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %.2f for %s", price, sym)
	}
	lot, err := s.LotSize(sym)
	if err != nil {
		return 0, err
	}
	lotsAffordable := int64(math.Floor(s.capital / (price * float64(lot))))
	if lotsAffordable < 1 {
		lotsAffordable = 1
	}
	return lotsAffordable * lot, nil
}

// LotSize resolves sym's lot size by longest-prefix match over the
// underlying table; symbol → underlying mapping beyond that is an external
// concern.
func (s *Sizer) LotSize(sym string) (int64, error) {
	upper := strings.ToUpper(sym)
	var best string
	var lot int64
	for underlying, size := range s.lots {
		if strings.HasPrefix(upper, underlying) && len(underlying) > len(best) {
			best = underlying
			lot = size
		}
	}
	if best == "" {
		return 0, fmt.Errorf("%w: %s", ErrUnknownUnderlying, sym)
	}
	return lot, nil
}
