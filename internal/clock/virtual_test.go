package clock

import (
	"testing"
	"time"
)

func TestVirtualFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, time.August, 3, 10, 0, 0, 0, time.UTC)
	c := NewVirtual(start)

	var fired []string
	c.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })

	c.Advance(5 * time.Second)

	if len(fired) != 3 || fired[0] != "a" || fired[1] != "b" || fired[2] != "c" {
		t.Fatalf("fired = %v, want [a b c]", fired)
	}
	if got := c.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Fatalf("now = %v, want start+5s", got)
	}
}

func TestVirtualNeverFiresEarly(t *testing.T) {
	c := NewVirtual(time.Unix(0, 0))
	fired := false
	c.AfterFunc(10*time.Second, func() { fired = true })

	c.Advance(9 * time.Second)
	if fired {
		t.Fatalf("timer fired before its deadline")
	}
	c.Advance(1 * time.Second)
	if !fired {
		t.Fatalf("timer did not fire at its deadline")
	}
}

func TestVirtualStopPreventsFiring(t *testing.T) {
	c := NewVirtual(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatalf("first Stop should report success")
	}
	if timer.Stop() {
		t.Fatalf("second Stop should be a no-op")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatalf("cancelled timer fired")
	}
}

func TestVirtualTimersArmedDuringFiring(t *testing.T) {
	c := NewVirtual(time.Unix(0, 0))
	var fired []string
	c.AfterFunc(time.Second, func() {
		fired = append(fired, "outer")
		c.AfterFunc(time.Second, func() { fired = append(fired, "inner") })
	})

	c.Advance(3 * time.Second)

	if len(fired) != 2 || fired[0] != "outer" || fired[1] != "inner" {
		t.Fatalf("fired = %v, want [outer inner]", fired)
	}
}

func TestVirtualNowDuringFiringIsDeadline(t *testing.T) {
	start := time.Unix(0, 0)
	c := NewVirtual(start)
	var seen time.Time
	c.AfterFunc(7*time.Second, func() { seen = c.Now() })

	c.Advance(time.Minute)

	if !seen.Equal(start.Add(7 * time.Second)) {
		t.Fatalf("now during firing = %v, want deadline", seen)
	}
}
