// Package hours implements the market-hours gate: a pure predicate over
// wall-clock time in the venue's timezone.
package hours

import (
	"fmt"
	"time"
)

// Gate decides whether the market is open at a given instant.
type Gate struct {
	loc         *time.Location
	days        map[time.Weekday]bool
	openMinute  int
	closeMinute int
	holidays    map[string]bool
	forceOpen   bool
	forceClosed bool
}

// Config enumerates the gate's knobs. Zero values fall back to Mon-Fri
// 09:15-15:30.
type Config struct {
	Timezone    string
	Days        []time.Weekday
	Open        string // "HH:MM"
	Close       string // "HH:MM"
	Holidays    []string // "YYYY-MM-DD" in the venue timezone
	ForceOpen   bool
	ForceClosed bool
}

// New builds a gate from config, validating the timezone and time strings.
func New(cfg Config) (*Gate, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	days := make(map[time.Weekday]bool)
	if len(cfg.Days) == 0 {
		for d := time.Monday; d <= time.Friday; d++ {
			days[d] = true
		}
	} else {
		for _, d := range cfg.Days {
			days[d] = true
		}
	}

	openMinute, err := parseMinute(cfg.Open, 9*60+15)
	if err != nil {
		return nil, err
	}
	closeMinute, err := parseMinute(cfg.Close, 15*60+30)
	if err != nil {
		return nil, err
	}
	if closeMinute < openMinute {
		return nil, fmt.Errorf("market close %q precedes open %q", cfg.Close, cfg.Open)
	}

	holidays := make(map[string]bool, len(cfg.Holidays))
	for _, day := range cfg.Holidays {
		if _, err := time.ParseInLocation("2006-01-02", day, loc); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", day, err)
		}
		holidays[day] = true
	}

	return &Gate{
		loc:         loc,
		days:        days,
		openMinute:  openMinute,
		closeMinute: closeMinute,
		holidays:    holidays,
		forceOpen:   cfg.ForceOpen,
		forceClosed: cfg.ForceClosed,
	}, nil
}

// IsOpen reports whether the market trades at instant at. ForceClosed wins
// over ForceOpen; both win over the calendar.
func (g *Gate) IsOpen(at time.Time) bool {
	if g.forceClosed {
		return false
	}
	if g.forceOpen {
		return true
	}
	local := at.In(g.loc)
	if !g.days[local.Weekday()] {
		return false
	}
	if g.holidays[local.Format("2006-01-02")] {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= g.openMinute && minute <= g.closeMinute
}

func parseMinute(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("market time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
