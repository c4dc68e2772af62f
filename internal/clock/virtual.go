package clock

import (
	"container/heap"
	"time"
)

// VirtualClock is a deterministic Clock for tests and backtests. Time stands
// still until Advance or AdvanceTo is called; due timers fire in (deadline,
// arming order) sequence with Now set to each timer's deadline while it runs.
// Timers armed during firing participate in the same advance when they fall
// inside the target.
type VirtualClock struct {
	now   time.Time
	seq   uint64
	queue timerQueue
}

type virtualTimer struct {
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
	owner   *VirtualClock
}

// NewVirtual creates a virtual clock starting at the given instant.
func NewVirtual(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

// Now returns the current virtual instant.
func (c *VirtualClock) Now() time.Time { return c.now }

// AfterFunc schedules fn to run when the clock is advanced to Now()+d or
// beyond.
func (c *VirtualClock) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &virtualTimer{at: c.now.Add(d), seq: c.seq, fn: fn, owner: c}
	heap.Push(&c.queue, t)
	return t
}

// Advance moves the clock forward by d, firing due timers along the way.
func (c *VirtualClock) Advance(d time.Duration) {
	c.AdvanceTo(c.now.Add(d))
}

// AdvanceTo moves the clock to target, firing every timer whose deadline is
// at or before target in deadline order. Moving backwards is a no-op.
func (c *VirtualClock) AdvanceTo(target time.Time) {
	if target.Before(c.now) {
		return
	}
	for len(c.queue) > 0 {
		next := c.queue[0]
		if next.at.After(target) {
			break
		}
		heap.Pop(&c.queue)
		if next.stopped {
			continue
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fn()
	}
	if target.After(c.now) {
		c.now = target
	}
}

// Pending reports how many armed timers are outstanding.
func (c *VirtualClock) Pending() int {
	n := 0
	for _, t := range c.queue {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (t *virtualTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type timerQueue []*virtualTimer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) { *q = append(*q, x.(*virtualTimer)) }

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
