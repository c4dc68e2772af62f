package store

import (
	"path/filepath"
	"testing"
	"time"

	"windowtrader/internal/machine"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	snap := machine.Snapshot{
		Sym:                 "NIFTY24AUG22500CE",
		State:               "BUY_WINDOW",
		SavedBuyLTP:         101.5,
		SavedLastBuyLTP:     101.5,
		SavedSellLTP:        99.0,
		SellStartAnchor:     100.0,
		SellStartSet:        true,
		WindowID:            7,
		WindowEndsAt:        time.UnixMilli(1700000000000),
		WaitMode:            machine.WaitAfterBuy,
		PendingBuyAfterSell: false,
		EntryOrderID:        "abc-123",
		SilencedUntil:       time.UnixMilli(1700000060000),
	}
	if err := s.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d snapshots, want 1", len(loaded))
	}
	got := loaded[0]
	if got.Sym != snap.Sym || got.SavedBuyLTP != snap.SavedBuyLTP ||
		got.SellStartAnchor != snap.SellStartAnchor || !got.SellStartSet ||
		got.WindowID != snap.WindowID || got.WaitMode != snap.WaitMode ||
		got.EntryOrderID != snap.EntryOrderID {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.WindowEndsAt.Equal(snap.WindowEndsAt) || !got.SilencedUntil.Equal(snap.SilencedUntil) {
		t.Fatalf("timestamps mismatch: %+v", got)
	}
}

func TestSaveUpsertsBySymbol(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	first := machine.Snapshot{Sym: "NIFTY", State: "IDLE", WaitMode: machine.WaitNone}
	if err := s.Save(first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := first
	second.State = "SELL_WINDOW"
	second.WindowID = 3
	if err := s.Save(second); err != nil {
		t.Fatalf("save update: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected one row per symbol, got %d", len(loaded))
	}
	if loaded[0].State != "SELL_WINDOW" || loaded[0].WindowID != 3 {
		t.Fatalf("latest snapshot must win: %+v", loaded[0])
	}
}

func TestReopenSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Save(machine.Snapshot{Sym: "BANKNIFTY", State: "IDLE", WaitMode: machine.WaitNone}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	loaded, err := reopened.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Sym != "BANKNIFTY" {
		t.Fatalf("snapshot lost across restart: %+v", loaded)
	}
}
