package session

import (
	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/geometry"
)

// Layout is the topology with resolved geometry, ready to draw. Wires and
// meters whose references do not resolve are listed but get no path.
type Layout struct {
	Topology  circuit.Snapshot           `json:"topology"`
	Terminals map[string][]circuit.Point `json:"terminals"`
	Sizes     map[string][2]float64      `json:"sizes"`
	Paths     map[string][]circuit.Point `json:"paths"`
	Selected  string                     `json:"selected,omitempty"`
	Wire      string                     `json:"selectedWire,omitempty"`
	History   int                        `json:"history"`
}

// Layout resolves terminals and wire paths for the current topology.
func (s *Session) Layout() Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := Layout{
		Topology:  s.model.Snapshot(),
		Terminals: map[string][]circuit.Point{},
		Sizes:     map[string][2]float64{},
		Paths:     map[string][]circuit.Point{},
		History:   s.model.HistoryLen(),
	}
	for _, c := range l.Topology.Components {
		l.Terminals[c.ID] = geometry.Terminals(c)
		w, h := geometry.Size(c)
		l.Sizes[c.ID] = [2]float64{w, h}
	}
	for _, w := range l.Topology.Wires {
		if path, ok := s.model.WirePath(w); ok {
			l.Paths[w.ID] = path
		}
	}
	l.Selected, l.Wire = s.model.Selection()
	return l
}

// Hit describes what lies under a canvas point. Terminals win over wire
// vertices, vertices over wires, wires over component bodies.
type Hit struct {
	Terminal  *circuit.TerminalRef `json:"terminal,omitempty"`
	WireID    string               `json:"wireId,omitempty"`
	PointIdx  *int                 `json:"pointIndex,omitempty"`
	Component string               `json:"componentId,omitempty"`
}

// HitTest finds the topmost element at p.
func (s *Session) HitTest(p circuit.Point) Hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.model.TerminalAt(p); ok {
		return Hit{Terminal: &ref}
	}
	if id, i, ok := s.model.WirePointAt(p); ok {
		return Hit{WireID: id, PointIdx: &i}
	}
	if w, ok := s.model.WireAt(p); ok {
		return Hit{WireID: w.ID}
	}
	if c, ok := s.model.ComponentAt(p); ok {
		return Hit{Component: c.ID}
	}
	return Hit{}
}
