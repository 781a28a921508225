package syncer

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
)

// Wake delays are clamped to this window after Grace is added.
const (
	MinWake = 150 * time.Millisecond
	MaxWake = 24 * time.Hour
	Grace   = 50 * time.Millisecond
)

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// InWindow reports whether now falls inside the daily interval [start, end).
// The interval wraps past midnight when end is not after start.
func InWindow(start, end string, now time.Time) bool {
	s, sok := ParseClock(start)
	e, eok := ParseClock(end)
	if !sok || !eok || s == e {
		return false
	}
	return inWindow(s, e, now.Hour()*60+now.Minute())
}

func inWindow(s, e, cur int) bool {
	if e > s {
		return cur >= s && cur < e
	}
	return cur >= s || cur < e
}

// NextBoundaryDelay returns the time until the daily interval next opens or
// closes. ok is false when either bound is invalid or both are equal.
func NextBoundaryDelay(start, end string, now time.Time) (time.Duration, bool) {
	s, sok := ParseClock(start)
	e, eok := ParseClock(end)
	if !sok || !eok || s == e {
		return 0, false
	}
	target := s
	if inWindow(s, e, now.Hour()*60+now.Minute()) {
		target = e
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), target/60, target%60, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at.Sub(now), true
}

// TimerRemaining returns how long a relative timer still has to run, never
// negative. Timestamps are epoch milliseconds.
func TimerRemaining(delayMs float64, startAt, nowMs int64) time.Duration {
	left := delayMs - float64(nowMs-startAt)
	if left <= 0 || math.IsNaN(left) {
		return 0
	}
	return time.Duration(left * float64(time.Millisecond))
}

// NextWake returns the shortest delay after which any of comps changes state
// on its own. ok is false when none of them will. A running timer that has
// already expired reports zero: the solver has yet to see it finish.
func NextWake(comps []circuit.Component, now time.Time) (time.Duration, bool) {
	var (
		best  time.Duration
		found bool
	)
	consider := func(d time.Duration) {
		if d >= 0 && (!found || d < best) {
			best, found = d, true
		}
	}
	for _, c := range comps {
		switch p := c.Props.(type) {
		case *circuit.TimerProps:
			st := p.State()
			if st.Running && st.StartAt != nil {
				consider(TimerRemaining(p.DelayMs, *st.StartAt, now.UnixMilli()))
			}
		case *circuit.TimeTimerProps:
			if d, ok := NextBoundaryDelay(p.StartTime, p.EndTime, now); ok {
				consider(d)
			}
		}
	}
	return best, found
}

// ClampWake converts a computed delay into the delay to arm.
func ClampWake(d time.Duration) time.Duration {
	d += Grace
	if d < MinWake {
		return MinWake
	}
	if d > MaxWake {
		return MaxWake
	}
	return d
}
