// Package sched holds the clock-window logic that gates periodic
// capture to a part of the day.
package sched

import (
	"fmt"
	"time"
)

// Window is a daily time-of-day window. Start and End use "HH:MM"
// 24h notation. When End is earlier than Start the window wraps past
// midnight, e.g. 22:00 to 06:00.
type Window struct {
	Start string
	End   string
}

type clock struct {
	hour   int
	minute int
}

func (c clock) minutes() int {
	return c.hour*60 + c.minute
}

func parseClock(s string) (clock, error) {
	var c clock
	if _, err := fmt.Sscanf(s, "%d:%d", &c.hour, &c.minute); err != nil {
		return clock{}, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if c.hour < 0 || c.hour > 23 || c.minute < 0 || c.minute > 59 {
		return clock{}, fmt.Errorf("clock %q out of range", s)
	}
	return c, nil
}

// Validate reports whether both bounds parse.
func (w Window) Validate() error {
	if _, err := parseClock(w.Start); err != nil {
		return err
	}
	_, err := parseClock(w.End)
	return err
}

// Contains reports whether t falls inside the window. Bounds are
// inclusive at Start and exclusive at End. An unparsable window is
// treated as always open so a bad setting cannot silently halt
// capture.
func (w Window) Contains(t time.Time) bool {
	start, err := parseClock(w.Start)
	if err != nil {
		return true
	}
	end, err := parseClock(w.End)
	if err != nil {
		return true
	}

	now := clock{hour: t.Hour(), minute: t.Minute()}.minutes()
	s, e := start.minutes(), end.minutes()
	if s == e {
		return true
	}
	if s < e {
		return now >= s && now < e
	}
	// Wraps past midnight.
	return now >= s || now < e
}
