package topology

import (
	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/geometry"
)

// Terminal resolves ref against the current geometry.
func (m *Model) Terminal(ref circuit.TerminalRef) (circuit.Point, bool) {
	c, err := m.component(ref.CompID)
	if err != nil {
		return circuit.Point{}, false
	}
	return geometry.Terminal(*c, ref.Index)
}

// WirePath returns the rendered polyline of w: its from terminal, the
// interior vertices, then its to terminal. ok is false when either endpoint
// no longer resolves; such wires are skipped, not deleted.
func (m *Model) WirePath(w circuit.Wire) ([]circuit.Point, bool) {
	from, ok := m.Terminal(w.From)
	if !ok {
		return nil, false
	}
	to, ok := m.Terminal(w.To)
	if !ok {
		return nil, false
	}
	path := make([]circuit.Point, 0, len(w.Points)+2)
	path = append(path, from)
	path = append(path, w.Points...)
	return append(path, to), true
}

// Resolvable reports whether both endpoints of w resolve.
func (m *Model) Resolvable(w circuit.Wire) bool {
	_, ok := m.WirePath(w)
	return ok
}

// MeterResolvable reports whether everything mt measures still exists.
func (m *Model) MeterResolvable(mt circuit.Meter) bool {
	if mt.Mode.ComponentScoped() {
		return m.componentIndex(mt.ComponentID) >= 0
	}
	if mt.ARef == nil || mt.BRef == nil {
		return false
	}
	_, aok := m.Terminal(*mt.ARef)
	_, bok := m.Terminal(*mt.BRef)
	return aok && bok
}

// ComponentAt returns the first component whose footprint contains p.
func (m *Model) ComponentAt(p circuit.Point) (circuit.Component, bool) {
	for _, c := range m.snap.Components {
		if geometry.Contains(c, p) {
			return c.Clone(), true
		}
	}
	return circuit.Component{}, false
}

// TerminalAt returns the first terminal within the terminal hit radius of p.
func (m *Model) TerminalAt(p circuit.Point) (circuit.TerminalRef, bool) {
	for _, c := range m.snap.Components {
		for i, t := range geometry.Terminals(c) {
			if geometry.Distance(p, t) <= geometry.TerminalHitRadius {
				return circuit.TerminalRef{CompID: c.ID, Index: i}, true
			}
		}
	}
	return circuit.TerminalRef{}, false
}

// WireAt returns the first resolvable wire passing within the wire hit
// distance of p.
func (m *Model) WireAt(p circuit.Point) (circuit.Wire, bool) {
	for _, w := range m.snap.Wires {
		path, ok := m.WirePath(w)
		if !ok {
			continue
		}
		for i := 0; i+1 < len(path); i++ {
			if geometry.SegmentDistance(p, path[i], path[i+1]) <= geometry.WireHitDistance {
				return w.Clone(), true
			}
		}
	}
	return circuit.Wire{}, false
}

// WirePointAt returns the first interior wire vertex within the vertex hit
// radius of p.
func (m *Model) WirePointAt(p circuit.Point) (wireID string, index int, ok bool) {
	for _, w := range m.snap.Wires {
		for i, pt := range w.Points {
			if geometry.Distance(p, pt) <= geometry.WirePointHitRadius {
				return w.ID, i, true
			}
		}
	}
	return "", 0, false
}
