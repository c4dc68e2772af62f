package machine

import "time"

// Wait-mode labels persisted for snapshot compatibility.
const (
	WaitAfterBuy  = "after_buy"
	WaitAfterSell = "after_sell"
	WaitNone      = "none"
)

// Snapshot is the coarse machine state written on every transition.
// Positions are not part of it; they are reconstructed from the broker.
type Snapshot struct {
	Sym                 string    `json:"sym"`
	State               string    `json:"state"`
	SavedBuyLTP         float64   `json:"saved_buy_ltp"`
	SavedLastBuyLTP     float64   `json:"saved_last_buy_ltp"`
	SavedSellLTP        float64   `json:"saved_sell_ltp"`
	SellStartAnchor     float64   `json:"sell_start_anchor"`
	SellStartSet        bool      `json:"sell_start_set"`
	WindowID            uint64    `json:"window_id"`
	WindowEndsAt        time.Time `json:"window_ends_at"`
	WaitMode            string    `json:"wait_mode"`
	PendingBuyAfterSell bool      `json:"pending_buy_after_sell"`
	EntryOrderID        string    `json:"entry_order_id"`
	SilencedUntil       time.Time `json:"silenced_until"`
}

// Snapshot exports the machine's coarse state.
func (m *Machine) Snapshot() Snapshot {
	wait := WaitNone
	switch {
	case m.pendingBuyAfterSell:
		wait = WaitAfterSell
	case m.sellStartSet:
		wait = WaitAfterBuy
	}
	return Snapshot{
		Sym:                 m.sym,
		State:               m.State().String(),
		SavedBuyLTP:         m.savedBuyLTP,
		SavedLastBuyLTP:     m.savedLastBuyLTP,
		SavedSellLTP:        m.savedSellLTP,
		SellStartAnchor:     m.sellStartAnchor,
		SellStartSet:        m.sellStartSet,
		WindowID:            m.windowID,
		WindowEndsAt:        m.windowEndsAt,
		WaitMode:            wait,
		PendingBuyAfterSell: m.pendingBuyAfterSell,
		EntryOrderID:        string(m.entryOrderID),
		SilencedUntil:       m.silencedUntil,
	}
}

// Restore rehydrates anchors and flags from a snapshot. Windows do not
// survive restarts: the machine comes back idle and the next signal re-arms
// it.
func (m *Machine) Restore(s Snapshot) {
	m.savedBuyLTP = s.SavedBuyLTP
	m.savedLastBuyLTP = s.SavedLastBuyLTP
	m.savedSellLTP = s.SavedSellLTP
	m.sellStartAnchor = s.SellStartAnchor
	m.sellStartSet = s.SellStartSet
	m.pendingBuyAfterSell = s.PendingBuyAfterSell
	if s.WindowID > m.windowID {
		m.windowID = s.WindowID
	}
	m.silencedUntil = s.SilencedUntil
	m.state = StateIdle
}

func (m *Machine) persist() {
	if m.deps.Snapshots == nil {
		return
	}
	if err := m.deps.Snapshots.Save(m.Snapshot()); err != nil {
		m.log.Warn().Err(err).Msg("snapshot save failed")
	}
}
