package circuit

import (
	"encoding/json"
	"math"
)

// Clone returns a deep copy that shares no memory with c.
func (c Component) Clone() Component {
	if c.Props != nil {
		c.Props = c.Props.Clone()
	}
	return c
}

// Clone returns a deep copy that shares no memory with w.
func (w Wire) Clone() Wire {
	pts := make([]Point, len(w.Points))
	copy(pts, w.Points)
	w.Points = pts
	return w
}

// Clone returns a deep copy that shares no memory with m.
func (m Meter) Clone() Meter {
	if m.ARef != nil {
		ref := *m.ARef
		m.ARef = &ref
	}
	if m.BRef != nil {
		ref := *m.BRef
		m.BRef = &ref
	}
	if m.Value != nil {
		v := *m.Value
		m.Value = &v
	}
	return m
}

// Clone returns a deep, fully independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Components:   make([]Component, len(s.Components)),
		Wires:        make([]Wire, len(s.Wires)),
		Meters:       make([]Meter, len(s.Meters)),
		WireDefaults: s.WireDefaults,
	}
	for i, c := range s.Components {
		out.Components[i] = c.Clone()
	}
	for i, w := range s.Wires {
		out.Wires[i] = w.Clone()
	}
	for i, m := range s.Meters {
		out.Meters[i] = m.Clone()
	}
	if s.CanvasSize != nil {
		cs := *s.CanvasSize
		out.CanvasSize = &cs
	}
	return out
}

// Normalize back-fills every default the model requires. It is applied on
// every load path, not only to legacy data.
func (s *Snapshot) Normalize() {
	if s.WireDefaults == (WireStyle{}) {
		s.WireDefaults = DefaultWireStyle
	}
	if s.Components == nil {
		s.Components = []Component{}
	}
	if s.Wires == nil {
		s.Wires = []Wire{}
	}
	if s.Meters == nil {
		s.Meters = []Meter{}
	}
	for i := range s.Components {
		c := &s.Components[i]
		if c.Props == nil {
			c.Props = NewProps(c.Type)
		}
		if c.Variant == "" {
			c.Variant = DefaultVariant(c.Type, c.Props)
		}
		c.Rotation = NormalizeRotation(c.Rotation)
	}
	for i := range s.Wires {
		w := &s.Wires[i]
		if w.Points == nil {
			w.Points = []Point{}
		}
		if w.Color == "" {
			w.Color = s.WireDefaults.Color
		}
		if w.Material == "" {
			w.Material = s.WireDefaults.Material
		}
	}
	for i := range s.Meters {
		m := &s.Meters[i]
		m.Value = nil
		if m.Unit == "" {
			m.Unit = m.Mode.Unit()
		}
	}
	if s.CanvasSize != nil {
		if !finite(s.CanvasSize.Width) || !finite(s.CanvasSize.Height) {
			s.CanvasSize = nil
		} else {
			fit := FitCanvas(s.CanvasSize.Width, s.CanvasSize.Height)
			s.CanvasSize = &fit
		}
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// UnmarshalJSON decodes a stored snapshot of any vintage and normalizes it.
// Wire style fields absent from a stored wire take the snapshot's wire
// defaults, which themselves fall back to DefaultWireStyle field by field.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var aux struct {
		Components   []Component     `json:"components"`
		Wires        []storedWire    `json:"wires"`
		Meters       []Meter         `json:"meters"`
		CanvasSize   *CanvasSize     `json:"canvasSize"`
		WireDefaults json.RawMessage `json:"wireDefaults"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	defaults := DefaultWireStyle
	if len(aux.WireDefaults) > 0 && string(aux.WireDefaults) != "null" {
		_ = json.Unmarshal(aux.WireDefaults, &defaults)
	}
	out := Snapshot{
		Components:   aux.Components,
		Wires:        make([]Wire, 0, len(aux.Wires)),
		Meters:       aux.Meters,
		CanvasSize:   aux.CanvasSize,
		WireDefaults: defaults,
	}
	for _, sw := range aux.Wires {
		out.Wires = append(out.Wires, sw.wire(defaults))
	}
	out.Normalize()
	*s = out
	return nil
}

type storedWire struct {
	ID       string      `json:"id"`
	From     TerminalRef `json:"from"`
	To       TerminalRef `json:"to"`
	Points   []Point     `json:"points"`
	Color    string      `json:"color"`
	Area     *float64    `json:"area"`
	Length   *float64    `json:"length"`
	Material string      `json:"material"`
}

func (sw storedWire) wire(defaults WireStyle) Wire {
	w := Wire{
		ID:     sw.ID,
		From:   sw.From,
		To:     sw.To,
		Points: sw.Points,
		WireStyle: WireStyle{
			Color:    sw.Color,
			Area:     defaults.Area,
			Length:   defaults.Length,
			Material: sw.Material,
		},
	}
	if sw.Area != nil {
		w.Area = *sw.Area
	}
	if sw.Length != nil {
		w.Length = *sw.Length
	}
	return w
}
