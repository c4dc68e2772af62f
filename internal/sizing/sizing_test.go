package sizing

import (
	"errors"
	"testing"
)

type fakePositions map[string]int64

func (f fakePositions) OpenQty(sym string) int64 { return f[sym] }

func TestQtyForEntryWholeLots(t *testing.T) {
	s := New(20000, map[string]int64{"NIFTY": 75, "BANKNIFTY": 35}, fakePositions{})

	qty, err := s.QtyForEntry("NIFTY24AUG22500CE", 100.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 20000 / (100*75) = 2.67 lots -> 2 whole lots.
	if qty != 150 {
		t.Fatalf("qty = %d, want 150", qty)
	}
}

func TestQtyForEntryMinimumOneLot(t *testing.T) {
	s := New(1000, map[string]int64{"NIFTY": 75}, fakePositions{})
	qty, err := s.QtyForEntry("NIFTY24AUG22500CE", 100.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qty != 75 {
		t.Fatalf("qty = %d, want one lot even when the budget falls short", qty)
	}
}

func TestQtyForEntryReusesOpenSize(t *testing.T) {
	s := New(20000, map[string]int64{"NIFTY": 75}, fakePositions{"NIFTY24AUG22500CE": 75})
	qty, err := s.QtyForEntry("NIFTY24AUG22500CE", 500.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qty != 75 {
		t.Fatalf("qty = %d, want the open size", qty)
	}
}

func TestLongestPrefixWins(t *testing.T) {
	s := New(20000, map[string]int64{"NIFTY": 75, "NIFTYNXT": 10}, fakePositions{})
	lot, err := s.LotSize("NIFTYNXT50AUGFUT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lot != 10 {
		t.Fatalf("lot = %d, want the longer underlying match", lot)
	}
}

func TestUnknownUnderlying(t *testing.T) {
	s := New(20000, map[string]int64{"NIFTY": 75}, fakePositions{})
	if _, err := s.QtyForEntry("SENSEX24AUGFUT", 100.0); !errors.Is(err, ErrUnknownUnderlying) {
		t.Fatalf("err = %v, want ErrUnknownUnderlying", err)
	}
}
