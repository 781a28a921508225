// Package derive turns a solver result into the visual predicates of the
// schematic: which wires are live, which lamps are lit, which contacts are
// made. A View never modifies the result it reads.
package derive

import (
	"math"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/solver"
)

// LiveThreshold is the voltage above which a wire counts as energized.
const LiveThreshold = 0.5

// Motor directions reported for three-phase motors.
const (
	DirectionCW      = "cw"
	DirectionCCW     = "ccw"
	DirectionStopped = "stopped"
)

// View answers predicate queries against one solver result. The zero value
// and a View over a nil result report everything off.
type View struct {
	res       *solver.Result
	active    bool
	forgotten map[string]struct{}
}

// New creates a view over res. When active is false, as when simulation is
// off, every predicate reports off.
func New(res *solver.Result, active bool) *View {
	return &View{res: res, active: active, forgotten: map[string]struct{}{}}
}

// Result returns the result the view reads.
func (v *View) Result() *solver.Result { return v.res }

// WithActive returns a view over the same result with the given activity.
func (v *View) WithActive(active bool) *View {
	out := New(v.res, active)
	for id := range v.forgotten {
		out.forgotten[id] = struct{}{}
	}
	return out
}

// Forget drops derived state keyed by component id.
func (v *View) Forget(id string) {
	if v.forgotten == nil {
		v.forgotten = map[string]struct{}{}
	}
	v.forgotten[id] = struct{}{}
}

func (v *View) ok(id string) bool {
	if v == nil || !v.active || v.res == nil {
		return false
	}
	_, gone := v.forgotten[id]
	return !gone
}

// Liveness returns the largest voltage signal seen by a wire between a and b:
// each endpoint's DC and AC magnitude and the DC and AC differences. ok is
// false when either endpoint has no node in the result.
func (v *View) Liveness(a, b circuit.TerminalRef) (mag float64, ok bool) {
	if v == nil || !v.active || v.res == nil {
		return 0, false
	}
	nodes := v.res.Solution.TerminalNodes
	na, aok := nodes[a.Key()]
	nb, bok := nodes[b.Key()]
	if !aok || !bok {
		return 0, false
	}
	if dc := v.res.Solution.NodeVoltages; inRange(na, len(dc)) && inRange(nb, len(dc)) {
		mag = max(mag, math.Abs(dc[na]), math.Abs(dc[nb]), math.Abs(dc[na]-dc[nb]))
	}
	if ac := v.res.Solution.ACNodeVoltages; inRange(na, len(ac)) && inRange(nb, len(ac)) {
		mag = max(mag, ac[na].Abs(), ac[nb].Abs(), ac[na].Sub(ac[nb]).Abs())
	}
	return mag, true
}

func inRange(i, n int) bool { return i >= 0 && i < n }

// WireEnergized reports whether w carries more than LiveThreshold.
func (v *View) WireEnergized(w circuit.Wire) bool {
	if !v.ok(w.From.CompID) || !v.ok(w.To.CompID) {
		return false
	}
	mag, ok := v.Liveness(w.From, w.To)
	return ok && mag > LiveThreshold
}

// Energized returns the ids of the energized wires among wires.
func (v *View) Energized(wires []circuit.Wire) map[string]bool {
	out := map[string]bool{}
	for _, w := range wires {
		if v.WireEnergized(w) {
			out[w.ID] = true
		}
	}
	return out
}

// LampLit reports whether lamp id is lit.
func (v *View) LampLit(id string) bool {
	return v.ok(id) && v.res.LampLit[id]
}

// MotorRunning reports whether motor id turns.
func (v *View) MotorRunning(id string) bool {
	return v.ok(id) && v.res.MotorRunning[id]
}

// Direction returns the rotation of three-phase motor id.
func (v *View) Direction(id string) string {
	if !v.ok(id) {
		return DirectionStopped
	}
	switch d := v.res.Motor3phDirection[id]; d {
	case DirectionCW, DirectionCCW:
		return d
	}
	return DirectionStopped
}

// ContactorEnergized reports whether the coil of contactor id is pulled in.
func (v *View) ContactorEnergized(id string) bool {
	return v.ok(id) && v.res.ContactorStates[id]
}

// PoleClosed reports whether pole i of a standard contactor conducts: an NO
// pole closes when the coil is energized, an NC pole opens.
func (v *View) PoleClosed(c circuit.Component, i int) bool {
	p, ok := c.Props.(*circuit.ContactorProps)
	if !ok || i < 0 || i >= len(p.Poles) {
		return false
	}
	return v.ContactorEnergized(c.ID) != (p.Poles[i] == circuit.PoleNC)
}

// MadeThrow returns the terminal index that pole i of a changeover contactor
// connects to its common terminal: the upper throw while energized, the lower
// one otherwise.
func (v *View) MadeThrow(c circuit.Component, i int) (int, bool) {
	p, ok := c.Props.(*circuit.ContactorProps)
	if !ok || p.ContactType != circuit.ContactChangeover || i < 0 || i >= len(p.Poles) {
		return 0, false
	}
	common := 2 + 3*i
	if v.ContactorEnergized(c.ID) {
		return common + 1, true
	}
	return common + 2, true
}

// TimerOutputClosed reports the output contact of timer id.
func (v *View) TimerOutputClosed(id string) bool {
	return v.ok(id) && v.res.TimerStates[id].OutputClosed
}

// Fault returns the fault or solve error reported for component id.
func (v *View) Fault(id string) (string, bool) {
	if !v.ok(id) {
		return "", false
	}
	if msg, ok := v.res.Faults[id]; ok && msg != "" {
		return msg, true
	}
	if msg, ok := v.res.SolveErrors[id]; ok && msg != "" {
		return msg, true
	}
	return "", false
}
