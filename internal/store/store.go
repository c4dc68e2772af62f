// Package store persists machine snapshots in an embedded sqlite database so
// anchors survive process restarts.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"windowtrader/internal/machine"
)

// Store writes one row per symbol, upserted on every transition.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and runs the migration.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS machine_snapshots (
  sym TEXT PRIMARY KEY,
  state TEXT NOT NULL,
  saved_buy_ltp REAL NOT NULL,
  saved_last_buy_ltp REAL NOT NULL,
  saved_sell_ltp REAL NOT NULL,
  sell_start_anchor REAL NOT NULL,
  sell_start_set INTEGER NOT NULL,
  window_id INTEGER NOT NULL,
  window_ends_at INTEGER NOT NULL,
  wait_mode TEXT NOT NULL,
  pending_buy_after_sell INTEGER NOT NULL,
  entry_order_id TEXT NOT NULL,
  silenced_until INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
`)
	return err
}

// Save upserts the snapshot row for its symbol.
func (s *Store) Save(snap machine.Snapshot) error {
	_, err := s.db.Exec(`
INSERT INTO machine_snapshots (
  sym, state, saved_buy_ltp, saved_last_buy_ltp, saved_sell_ltp,
  sell_start_anchor, sell_start_set, window_id, window_ends_at, wait_mode,
  pending_buy_after_sell, entry_order_id, silenced_until, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(sym) DO UPDATE SET
  state=excluded.state,
  saved_buy_ltp=excluded.saved_buy_ltp,
  saved_last_buy_ltp=excluded.saved_last_buy_ltp,
  saved_sell_ltp=excluded.saved_sell_ltp,
  sell_start_anchor=excluded.sell_start_anchor,
  sell_start_set=excluded.sell_start_set,
  window_id=excluded.window_id,
  window_ends_at=excluded.window_ends_at,
  wait_mode=excluded.wait_mode,
  pending_buy_after_sell=excluded.pending_buy_after_sell,
  entry_order_id=excluded.entry_order_id,
  silenced_until=excluded.silenced_until,
  updated_at=excluded.updated_at
`,
		snap.Sym, snap.State, snap.SavedBuyLTP, snap.SavedLastBuyLTP, snap.SavedSellLTP,
		snap.SellStartAnchor, boolInt(snap.SellStartSet), snap.WindowID, snap.WindowEndsAt.UnixMilli(),
		snap.WaitMode, boolInt(snap.PendingBuyAfterSell), snap.EntryOrderID,
		snap.SilencedUntil.UnixMilli(), time.Now().UnixMilli(),
	)
	return err
}

// Load reads every persisted snapshot for registry seeding.
func (s *Store) Load() ([]machine.Snapshot, error) {
	rows, err := s.db.Query(`
SELECT sym, state, saved_buy_ltp, saved_last_buy_ltp, saved_sell_ltp,
       sell_start_anchor, sell_start_set, window_id, window_ends_at,
       wait_mode, pending_buy_after_sell, entry_order_id, silenced_until
FROM machine_snapshots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []machine.Snapshot
	for rows.Next() {
		var snap machine.Snapshot
		var sellStartSet, pending int
		var endsAt, silencedUntil int64
		if err := rows.Scan(
			&snap.Sym, &snap.State, &snap.SavedBuyLTP, &snap.SavedLastBuyLTP, &snap.SavedSellLTP,
			&snap.SellStartAnchor, &sellStartSet, &snap.WindowID, &endsAt,
			&snap.WaitMode, &pending, &snap.EntryOrderID, &silencedUntil,
		); err != nil {
			return nil, err
		}
		snap.SellStartSet = sellStartSet != 0
		snap.PendingBuyAfterSell = pending != 0
		snap.WindowEndsAt = time.UnixMilli(endsAt)
		snap.SilencedUntil = time.UnixMilli(silencedUntil)
		out = append(out, snap)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
