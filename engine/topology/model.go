// Package topology owns the editable schematic: components, wires, meters,
// canvas settings and selection, with an undo journal. A Model is not safe for
// concurrent use; callers serialize access.
package topology

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/geometry"
	"github.com/WessleyAI/wessley-schematic/engine/history"
)

// Options configures a Model.
type Options struct {
	HistoryLimit int           // default history.DefaultLimit
	NewID        func() string // default uuid.NewString
}

// Model is the live topology.
type Model struct {
	snap         circuit.Snapshot
	journal      *history.Journal
	newID        func() string
	selected     string
	selectedWire string
}

// New creates an empty model.
func New(opts Options) *Model {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	m := &Model{
		journal: history.New(opts.HistoryLimit),
		newID:   opts.NewID,
	}
	m.snap.Normalize()
	return m
}

func (m *Model) record() { m.journal.Record(m.snap) }

func (m *Model) componentIndex(id string) int {
	return slices.IndexFunc(m.snap.Components, func(c circuit.Component) bool { return c.ID == id })
}

func (m *Model) wireIndex(id string) int {
	return slices.IndexFunc(m.snap.Wires, func(w circuit.Wire) bool { return w.ID == id })
}

func (m *Model) meterIndex(id string) int {
	return slices.IndexFunc(m.snap.Meters, func(mt circuit.Meter) bool { return mt.ID == id })
}

func (m *Model) component(id string) (*circuit.Component, error) {
	i := m.componentIndex(id)
	if i < 0 {
		return nil, circuit.NewRefError("component", id, circuit.ErrComponentNotFound)
	}
	return &m.snap.Components[i], nil
}

func (m *Model) wire(id string) (*circuit.Wire, error) {
	i := m.wireIndex(id)
	if i < 0 {
		return nil, circuit.NewRefError("wire", id, circuit.ErrWireNotFound)
	}
	return &m.snap.Wires[i], nil
}

func (m *Model) meter(id string) (*circuit.Meter, error) {
	i := m.meterIndex(id)
	if i < 0 {
		return nil, circuit.NewRefError("meter", id, circuit.ErrMeterNotFound)
	}
	return &m.snap.Meters[i], nil
}

// AddComponent places a new component from the library preset variant at
// the snapped position and selects it.
func (m *Model) AddComponent(variant string, x, y float64) (circuit.Component, error) {
	preset, ok := circuit.Lookup(variant)
	if !ok {
		return circuit.Component{}, fmt.Errorf("topology: add %q: %w", variant, circuit.ErrUnknownVariant)
	}
	m.record()
	c := circuit.Component{
		ID:      m.newID(),
		Type:    preset.Kind,
		Variant: preset.Variant,
		X:       circuit.Snap(x),
		Y:       circuit.Snap(y),
		Props:   preset.Defaults(),
	}
	m.snap.Components = append(m.snap.Components, c)
	m.selected, m.selectedWire = c.ID, ""
	return c.Clone(), nil
}

// MoveComponent moves a component to the snapped position. Wires follow
// because they reference terminals.
func (m *Model) MoveComponent(id string, x, y float64) error {
	c, err := m.component(id)
	if err != nil {
		return err
	}
	m.record()
	c.X, c.Y = circuit.Snap(x), circuit.Snap(y)
	return nil
}

// RotateComponent turns a component by step degrees, a multiple of 90.
func (m *Model) RotateComponent(id string, step int) error {
	if step%90 != 0 {
		return fmt.Errorf("topology: rotate %q by %d: %w", id, step, circuit.ErrInvalidRotation)
	}
	c, err := m.component(id)
	if err != nil {
		return err
	}
	m.record()
	c.Rotation = circuit.NormalizeRotation(c.Rotation + step)
	return nil
}

// RemoveComponent deletes a component and every wire attached to it. It
// returns the ids of the removed wires.
func (m *Model) RemoveComponent(id string) ([]string, error) {
	i := m.componentIndex(id)
	if i < 0 {
		return nil, circuit.NewRefError("component", id, circuit.ErrComponentNotFound)
	}
	m.record()
	m.snap.Components = slices.Delete(m.snap.Components, i, i+1)
	var removed []string
	m.snap.Wires = slices.DeleteFunc(m.snap.Wires, func(w circuit.Wire) bool {
		if w.References(id) {
			removed = append(removed, w.ID)
			return true
		}
		return false
	})
	if m.selected == id {
		m.selected = ""
	}
	if slices.Contains(removed, m.selectedWire) {
		m.selectedWire = ""
	}
	return removed, nil
}

// UpdateProps edits a component's props through fn. fn works on a copy; the
// edit is recorded and applied only if fn succeeds.
func (m *Model) UpdateProps(id string, fn func(circuit.Props) error) error {
	c, err := m.component(id)
	if err != nil {
		return err
	}
	next := c.Props.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if next.Kind() != c.Type {
		return fmt.Errorf("topology: props for %q: %w", id, circuit.ErrPropsKind)
	}
	m.record()
	c.Props = next
	return nil
}

// PatchProps merges a JSON object into a component's props.
func (m *Model) PatchProps(id string, raw json.RawMessage) error {
	c, err := m.component(id)
	if err != nil {
		return err
	}
	next, err := circuit.PatchProps(c.Props, raw)
	if err != nil {
		return fmt.Errorf("topology: patch props %q: %w", id, err)
	}
	m.record()
	c.Props = next
	return nil
}

// SetTimerState stores solver-reported timer progress. It is bookkeeping, not
// an edit, so it is not recorded.
func (m *Model) SetTimerState(id string, st circuit.TimerState) bool {
	c, err := m.component(id)
	if err != nil {
		return false
	}
	t, ok := c.Props.(circuit.Timed)
	if !ok {
		return false
	}
	t.SetState(st)
	return true
}

// Toggle flips a switch or a two-way switch. Interactive controls are not
// recorded.
func (m *Model) Toggle(id string) error {
	c, err := m.component(id)
	if err != nil {
		return err
	}
	switch p := c.Props.(type) {
	case *circuit.SwitchProps:
		p.Closed = !p.Closed
	case *circuit.SPDTProps:
		if p.Position == "up" {
			p.Position = "down"
		} else {
			p.Position = "up"
		}
	default:
		return fmt.Errorf("topology: toggle %q: %w", id, circuit.ErrNotInteractive)
	}
	return nil
}

// SetMomentary presses or releases a push button.
func (m *Model) SetMomentary(id string, closed bool) error {
	c, err := m.component(id)
	if err != nil {
		return err
	}
	p, ok := c.Props.(*circuit.PushButtonProps)
	if !ok {
		return fmt.Errorf("topology: press %q: %w", id, circuit.ErrNotInteractive)
	}
	p.Closed = closed
	return nil
}

func (m *Model) checkRef(ref circuit.TerminalRef) error {
	c, err := m.component(ref.CompID)
	if err != nil {
		return err
	}
	if ref.Index < 0 || ref.Index >= geometry.TerminalCount(*c) {
		return circuit.NewRefError("terminal", ref.Key(), circuit.ErrTerminalNotFound)
	}
	return nil
}

// AddWire connects two terminals with the current default wire style.
func (m *Model) AddWire(from, to circuit.TerminalRef, points []circuit.Point) (circuit.Wire, error) {
	if from == to {
		return circuit.Wire{}, fmt.Errorf("topology: add wire %s: %w", from.Key(), circuit.ErrSelfLoop)
	}
	if err := m.checkRef(from); err != nil {
		return circuit.Wire{}, err
	}
	if err := m.checkRef(to); err != nil {
		return circuit.Wire{}, err
	}
	pts := make([]circuit.Point, len(points))
	for i, p := range points {
		pts[i] = circuit.Point{X: circuit.Snap(p.X), Y: circuit.Snap(p.Y)}
	}
	m.record()
	w := circuit.Wire{ID: m.newID(), From: from, To: to, Points: pts, WireStyle: m.snap.WireDefaults}
	m.snap.Wires = append(m.snap.Wires, w)
	return w.Clone(), nil
}

// RemoveWire deletes a wire.
func (m *Model) RemoveWire(id string) error {
	i := m.wireIndex(id)
	if i < 0 {
		return circuit.NewRefError("wire", id, circuit.ErrWireNotFound)
	}
	m.record()
	m.snap.Wires = slices.Delete(m.snap.Wires, i, i+1)
	if m.selectedWire == id {
		m.selectedWire = ""
	}
	return nil
}

// SetWireStyle replaces a wire's style. Empty strings and non-positive
// numbers keep the current value.
func (m *Model) SetWireStyle(id string, style circuit.WireStyle) error {
	w, err := m.wire(id)
	if err != nil {
		return err
	}
	m.record()
	w.WireStyle = mergeStyle(w.WireStyle, style)
	return nil
}

// SetWireDefaults changes the style applied to new wires.
func (m *Model) SetWireDefaults(style circuit.WireStyle) {
	m.record()
	m.snap.WireDefaults = mergeStyle(m.snap.WireDefaults, style)
}

func mergeStyle(cur, next circuit.WireStyle) circuit.WireStyle {
	if next.Color != "" {
		cur.Color = next.Color
	}
	if next.Area > 0 {
		cur.Area = next.Area
	}
	if next.Length > 0 {
		cur.Length = next.Length
	}
	if next.Material != "" {
		cur.Material = next.Material
	}
	return cur
}

// InsertWirePoint adds an interior vertex at the snapped p, on the path
// segment closest to p. The first segment wins a tie. It returns the new
// vertex index.
func (m *Model) InsertWirePoint(id string, p circuit.Point) (int, error) {
	w, err := m.wire(id)
	if err != nil {
		return 0, err
	}
	path, ok := m.WirePath(*w)
	if !ok {
		return 0, fmt.Errorf("topology: insert point on %q: %w", id, circuit.ErrNoWirePath)
	}
	best, bestDist := 0, -1.0
	for i := 0; i+1 < len(path); i++ {
		d := geometry.SegmentDistance(p, path[i], path[i+1])
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	idx := max(0, min(len(w.Points), best))
	m.record()
	w.Points = slices.Insert(w.Points, idx, circuit.Point{X: circuit.Snap(p.X), Y: circuit.Snap(p.Y)})
	return idx, nil
}

// RemoveWirePoint deletes the interior vertex nearest p within the vertex hit
// radius.
func (m *Model) RemoveWirePoint(id string, p circuit.Point) error {
	w, err := m.wire(id)
	if err != nil {
		return err
	}
	idx, bestDist := -1, 0.0
	for i, pt := range w.Points {
		d := geometry.Distance(p, pt)
		if d <= geometry.WirePointHitRadius && (idx < 0 || d < bestDist) {
			idx, bestDist = i, d
		}
	}
	if idx < 0 {
		return fmt.Errorf("topology: remove point on %q: %w", id, circuit.ErrNoWirePoint)
	}
	m.record()
	w.Points = slices.Delete(w.Points, idx, idx+1)
	return nil
}

// MoveWirePoint drags interior vertex index to the snapped p.
func (m *Model) MoveWirePoint(id string, index int, p circuit.Point) error {
	w, err := m.wire(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(w.Points) {
		return fmt.Errorf("topology: move point %d on %q: %w", index, id, circuit.ErrNoWirePoint)
	}
	m.record()
	w.Points[index] = circuit.Point{X: circuit.Snap(p.X), Y: circuit.Snap(p.Y)}
	return nil
}

// AddMeter validates and places a meter. A meter at the origin is moved
// next to what it measures.
func (m *Model) AddMeter(mt circuit.Meter) (circuit.Meter, error) {
	if !mt.Mode.Known() {
		return circuit.Meter{}, fmt.Errorf("topology: meter mode %q: %w", mt.Mode, circuit.ErrInvalidMeter)
	}
	if mt.Mode.ComponentScoped() {
		c, err := m.component(mt.ComponentID)
		if err != nil {
			return circuit.Meter{}, fmt.Errorf("topology: %s meter: %w", mt.Mode, err)
		}
		mt.ARef, mt.BRef = nil, nil
		if mt.X == 0 && mt.Y == 0 {
			mt.X, mt.Y = c.X+60, c.Y-40
		}
	} else {
		if mt.ARef == nil || mt.BRef == nil {
			return circuit.Meter{}, fmt.Errorf("topology: %s meter needs two terminals: %w", mt.Mode, circuit.ErrInvalidMeter)
		}
		a, aok := m.Terminal(*mt.ARef)
		b, bok := m.Terminal(*mt.BRef)
		if !aok || !bok {
			return circuit.Meter{}, fmt.Errorf("topology: %s meter: %w", mt.Mode, circuit.ErrTerminalNotFound)
		}
		mt.ComponentID = ""
		if mt.X == 0 && mt.Y == 0 {
			mt.X, mt.Y = (a.X+b.X)/2+40, (a.Y+b.Y)/2-40
		}
	}
	mt.ID = m.newID()
	mt.Unit = mt.Mode.Unit()
	mt.Value = nil
	m.record()
	m.snap.Meters = append(m.snap.Meters, mt)
	return mt.Clone(), nil
}

// RemoveMeter deletes a meter.
func (m *Model) RemoveMeter(id string) error {
	i := m.meterIndex(id)
	if i < 0 {
		return circuit.NewRefError("meter", id, circuit.ErrMeterNotFound)
	}
	m.record()
	m.snap.Meters = slices.Delete(m.snap.Meters, i, i+1)
	return nil
}

// MoveMeter repositions a meter label. Not recorded.
func (m *Model) MoveMeter(id string, x, y float64) error {
	mt, err := m.meter(id)
	if err != nil {
		return err
	}
	mt.X, mt.Y = x, y
	return nil
}

// SetMeterValue caches a reading; nil clears it.
func (m *Model) SetMeterValue(id string, v *float64) bool {
	mt, err := m.meter(id)
	if err != nil {
		return false
	}
	if v != nil {
		val := *v
		v = &val
	}
	mt.Value = v
	return true
}

// SetCanvasSize resizes the canvas, snapped and clamped to the minimum.
func (m *Model) SetCanvasSize(w, h float64) circuit.CanvasSize {
	m.record()
	cs := circuit.FitCanvas(w, h)
	m.snap.CanvasSize = &cs
	return cs
}

// Select marks a component as selected and clears the wire selection. An
// empty id clears it.
func (m *Model) Select(id string) {
	m.selected, m.selectedWire = id, ""
}

// SelectWire marks a wire as selected and clears the component selection.
func (m *Model) SelectWire(id string) {
	m.selected, m.selectedWire = "", id
}

// Selection returns the selected component and wire ids.
func (m *Model) Selection() (component, wire string) {
	return m.selected, m.selectedWire
}

// Clear empties the topology, keeping canvas size and wire defaults.
func (m *Model) Clear() {
	m.record()
	m.snap.Components = []circuit.Component{}
	m.snap.Wires = []circuit.Wire{}
	m.snap.Meters = []circuit.Meter{}
	m.selected, m.selectedWire = "", ""
}

// Load replaces the live topology with a normalized copy of s and clears the
// selection. The journal is kept.
func (m *Model) Load(s circuit.Snapshot) {
	s = s.Clone()
	s.Normalize()
	m.snap = s
	m.selected, m.selectedWire = "", ""
}

// Snapshot returns a deep copy of the serializable topology. Cached meter
// readings are not part of it.
func (m *Model) Snapshot() circuit.Snapshot {
	s := m.snap.Clone()
	for i := range s.Meters {
		s.Meters[i].Value = nil
	}
	return s
}

// Undo restores the most recent recorded snapshot.
func (m *Model) Undo() bool {
	s, ok := m.journal.Undo()
	if !ok {
		return false
	}
	m.Load(s)
	return true
}

// HistoryLen reports the journal depth.
func (m *Model) HistoryLen() int { return m.journal.Len() }

// Component returns a copy of the component with id.
func (m *Model) Component(id string) (circuit.Component, bool) {
	c, err := m.component(id)
	if err != nil {
		return circuit.Component{}, false
	}
	return c.Clone(), true
}

// Components returns copies of all components in insertion order.
func (m *Model) Components() []circuit.Component {
	out := make([]circuit.Component, len(m.snap.Components))
	for i, c := range m.snap.Components {
		out[i] = c.Clone()
	}
	return out
}

// Wires returns copies of all wires, resolvable or not.
func (m *Model) Wires() []circuit.Wire {
	out := make([]circuit.Wire, len(m.snap.Wires))
	for i, w := range m.snap.Wires {
		out[i] = w.Clone()
	}
	return out
}

// Meters returns copies of all meters with their cached readings.
func (m *Model) Meters() []circuit.Meter {
	out := make([]circuit.Meter, len(m.snap.Meters))
	for i, mt := range m.snap.Meters {
		out[i] = mt.Clone()
	}
	return out
}

// CanvasSize returns the configured canvas size, if any.
func (m *Model) CanvasSize() (circuit.CanvasSize, bool) {
	if m.snap.CanvasSize == nil {
		return circuit.CanvasSize{}, false
	}
	return *m.snap.CanvasSize, true
}

// WireDefaults returns the style applied to new wires.
func (m *Model) WireDefaults() circuit.WireStyle { return m.snap.WireDefaults }

// TimeDriven returns copies of components whose state changes with time.
func (m *Model) TimeDriven() []circuit.Component {
	var out []circuit.Component
	for _, c := range m.snap.Components {
		if _, ok := c.Props.(circuit.Timed); ok {
			out = append(out, c.Clone())
		}
	}
	return out
}
