// Package clock abstracts wall time so the trading core can run against the
// system clock in production and a virtual clock in tests and backtests.
package clock

import "time"

// Timer is a cancellable one-shot timer handle.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// timer from firing; stopping an already-fired or already-stopped
	// timer is a no-op.
	Stop() bool
}

// Clock provides the current instant and one-shot timers. Timers never fire
// before their deadline and fire at most once.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemClock struct{}

type systemTimer struct{ t *time.Timer }

// System returns a Clock backed by the runtime clock.
func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{t: time.AfterFunc(d, fn)}
}

func (s systemTimer) Stop() bool { return s.t.Stop() }
