package syncer

import (
	"testing"
	"time"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
)

func at(hh, mm int) time.Time {
	return time.Date(2024, 3, 14, hh, mm, 0, 0, time.UTC)
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"08:00", 480, true},
		{"23:59", 1439, true},
		{"0:5", 5, true},
		{"24:00", 0, false},
		{"12:60", 0, false},
		{"noon", 0, false},
		{"", 0, false},
		{"ab:10", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseClock(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseClock(%q) = %d, %v", tc.in, got, ok)
		}
	}
}

func TestNextBoundaryDelay(t *testing.T) {
	cases := []struct {
		name       string
		start, end string
		now        time.Time
		want       time.Duration
	}{
		{"before start", "08:00", "17:00", at(7, 0), time.Hour},
		{"inside window", "08:00", "17:00", at(12, 0), 5 * time.Hour},
		{"after end wraps", "08:00", "17:00", at(20, 0), 12 * time.Hour},
		{"exactly at start", "08:00", "17:00", at(8, 0), 9 * time.Hour},
		{"overnight inside", "22:00", "06:00", at(23, 30), 6*time.Hour + 30*time.Minute},
		{"overnight after midnight", "22:00", "06:00", at(1, 0), 5 * time.Hour},
		{"overnight outside", "22:00", "06:00", at(12, 0), 10 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextBoundaryDelay(tc.start, tc.end, tc.now)
			if !ok || got != tc.want {
				t.Fatalf("got %v, %v; want %v", got, ok, tc.want)
			}
		})
	}
}

func TestNextBoundaryDelaySeconds(t *testing.T) {
	now := time.Date(2024, 3, 14, 7, 59, 30, 0, time.UTC)
	got, ok := NextBoundaryDelay("08:00", "17:00", now)
	if !ok || got != 30*time.Second {
		t.Fatalf("got %v, %v", got, ok)
	}
}

func TestNextBoundaryDelayNeverFires(t *testing.T) {
	for _, pair := range [][2]string{{"08:00", "08:00"}, {"25:00", "17:00"}, {"08:00", ""}, {"x", "y"}} {
		if _, ok := NextBoundaryDelay(pair[0], pair[1], at(12, 0)); ok {
			t.Errorf("%q-%q should never fire", pair[0], pair[1])
		}
	}
}

func TestInWindow(t *testing.T) {
	if !InWindow("08:00", "17:00", at(8, 0)) || InWindow("08:00", "17:00", at(17, 0)) {
		t.Fatal("day window bounds")
	}
	if !InWindow("22:00", "06:00", at(3, 0)) || InWindow("22:00", "06:00", at(6, 0)) {
		t.Fatal("overnight window bounds")
	}
	if InWindow("08:00", "08:00", at(8, 0)) {
		t.Fatal("equal bounds are never active")
	}
}

func TestTimerRemaining(t *testing.T) {
	const start = int64(1_700_000_000_000)
	if got := TimerRemaining(3000, start, start+1000); got != 2000*time.Millisecond {
		t.Fatalf("T+1000: %v", got)
	}
	if got := TimerRemaining(3000, start, start+4000); got != 0 {
		t.Fatalf("T+4000: %v", got)
	}
	if got := TimerRemaining(3000, start, start); got != 3*time.Second {
		t.Fatalf("T: %v", got)
	}
}

func timer(delay float64, running bool, startAt *int64) circuit.Component {
	p := circuit.NewProps(circuit.KindTimer).(*circuit.TimerProps)
	p.DelayMs = delay
	p.SetState(circuit.TimerState{Running: running, StartAt: startAt})
	return circuit.Component{ID: "t", Type: circuit.KindTimer, Props: p}
}

func timeTimer(start, end string) circuit.Component {
	p := circuit.NewProps(circuit.KindTimeTimer).(*circuit.TimeTimerProps)
	p.StartTime, p.EndTime = start, end
	return circuit.Component{ID: "tt", Type: circuit.KindTimeTimer, Props: p}
}

func TestNextWake(t *testing.T) {
	now := at(12, 0)
	started := now.Add(-time.Second).UnixMilli()

	if _, ok := NextWake(nil, now); ok {
		t.Fatal("no components, no wake")
	}
	if _, ok := NextWake([]circuit.Component{timer(3000, false, &started)}, now); ok {
		t.Fatal("stopped timer must not wake")
	}
	if _, ok := NextWake([]circuit.Component{timer(3000, true, nil)}, now); ok {
		t.Fatal("timer without start must not wake")
	}
	expired := now.Add(-time.Minute).UnixMilli()
	if d, ok := NextWake([]circuit.Component{timer(3000, true, &expired)}, now); !ok || d != 0 {
		t.Fatalf("expired running timer: got %v, %v", d, ok)
	}
	if d, ok := NextWake([]circuit.Component{timer(3000, true, &expired), timeTimer("08:00", "17:00")}, now); !ok || d != 0 {
		t.Fatalf("expired timer should win: got %v, %v", d, ok)
	}
	if ClampWake(0) != MinWake {
		t.Fatal("an expired timer arms the minimum wake")
	}

	got, ok := NextWake([]circuit.Component{
		timeTimer("08:00", "17:00"),
		timer(3000, true, &started),
		timeTimer("09:00", "09:00"),
		{ID: "r", Type: circuit.KindResistor, Props: circuit.NewProps(circuit.KindResistor)},
	}, now)
	if !ok || got != 2*time.Second {
		t.Fatalf("got %v, %v", got, ok)
	}

	got, ok = NextWake([]circuit.Component{timeTimer("08:00", "17:00")}, now)
	if !ok || got != 5*time.Hour {
		t.Fatalf("got %v, %v", got, ok)
	}
}

func TestClampWake(t *testing.T) {
	cases := []struct{ in, want time.Duration }{
		{time.Millisecond, MinWake},
		{100 * time.Millisecond, MinWake},
		{2 * time.Second, 2*time.Second + Grace},
		{30 * time.Hour, MaxWake},
		{MaxWake, MaxWake},
	}
	for _, tc := range cases {
		if got := ClampWake(tc.in); got != tc.want {
			t.Errorf("ClampWake(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
