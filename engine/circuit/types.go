// Package circuit defines the schematic data model shared by every engine
// package: components and their typed properties, wires, meters, snapshots
// and the component library. It also owns load-time normalization so that a
// decoded snapshot always satisfies the model invariants.
package circuit

import (
	"fmt"
	"math"
)

// Kind selects a component's behavior and terminal template.
type Kind string

const (
	KindVoltageSource Kind = "voltage_source"
	KindGround        Kind = "ground"
	KindLamp          Kind = "lamp"
	KindMotor         Kind = "motor"
	KindMotor3ph      Kind = "motor_3ph"
	KindResistor      Kind = "resistor"
	KindCapacitor     Kind = "capacitor"
	KindInductor      Kind = "inductor"
	KindSwitch        Kind = "switch"
	KindPushButton    Kind = "push_button"
	KindSwitchSPDT    Kind = "switch_spdt"
	KindTimer         Kind = "timer"
	KindTimeTimer     Kind = "time_timer"
	KindContactor     Kind = "contactor"
	KindNode          Kind = "node"
)

// Grid is the canvas snapping unit.
const Grid = 20

// Snap rounds v to the nearest grid line. Halves round toward +Inf so that
// negative coordinates snap the same way the canvas does.
func Snap(v float64) float64 {
	return math.Floor(v/Grid+0.5) * Grid
}

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TerminalRef addresses a terminal by component and index, never by position.
type TerminalRef struct {
	CompID string `json:"compId"`
	Index  int    `json:"index"`
}

// Key returns the "componentId:index" form used by the solver's terminal map.
func (r TerminalRef) Key() string {
	return fmt.Sprintf("%s:%d", r.CompID, r.Index)
}

// Component is a placed schematic symbol.
type Component struct {
	ID       string  `json:"id"`
	Type     Kind    `json:"type"`
	Variant  string  `json:"variant"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation int     `json:"rotation"`
	Props    Props   `json:"props"`
}

// WireStyle is the visual and physical description applied to new wires.
type WireStyle struct {
	Color    string  `json:"color"`
	Area     float64 `json:"area"`
	Length   float64 `json:"length"`
	Material string  `json:"material"`
}

// DefaultWireStyle is used when a snapshot carries no wire defaults.
var DefaultWireStyle = WireStyle{Color: "#2f2f34", Area: 1.5, Length: 1, Material: "copper"}

// Wire connects two terminals through an optional interior polyline.
type Wire struct {
	ID     string      `json:"id"`
	From   TerminalRef `json:"from"`
	To     TerminalRef `json:"to"`
	Points []Point     `json:"points"`
	WireStyle
}

// References reports whether either endpoint addresses component id.
func (w Wire) References(id string) bool {
	return w.From.CompID == id || w.To.CompID == id
}

// MeterMode names what a meter measures.
type MeterMode string

const (
	MeterVoltage    MeterMode = "voltage"
	MeterACVoltage  MeterMode = "ac_voltage"
	MeterACPhase    MeterMode = "ac_phase"
	MeterResistance MeterMode = "resistance"
	MeterCurrent    MeterMode = "current"
	MeterACCurrent  MeterMode = "ac_current"
	MeterACPowerP   MeterMode = "ac_power_p"
	MeterACPowerQ   MeterMode = "ac_power_q"
	MeterACPowerS   MeterMode = "ac_power_s"
	MeterACPF       MeterMode = "ac_pf"
)

var meterUnits = map[MeterMode]string{
	MeterVoltage:    "V",
	MeterACVoltage:  "V",
	MeterACPhase:    "°",
	MeterResistance: "Ω",
	MeterCurrent:    "A",
	MeterACCurrent:  "A",
	MeterACPowerP:   "W",
	MeterACPowerQ:   "var",
	MeterACPowerS:   "VA",
	MeterACPF:       "",
}

// ComponentScoped reports whether the mode addresses a single component
// rather than a pair of terminals.
func (m MeterMode) ComponentScoped() bool {
	switch m {
	case MeterCurrent, MeterACCurrent, MeterACPowerP, MeterACPowerQ, MeterACPowerS, MeterACPF:
		return true
	}
	return false
}

// Known reports whether m is a supported mode.
func (m MeterMode) Known() bool {
	_, ok := meterUnits[m]
	return ok
}

// Unit returns the display unit for the mode.
func (m MeterMode) Unit() string { return meterUnits[m] }

// Meter is a placed measurement probe. Value is the cached last reading and
// is never part of a snapshot.
type Meter struct {
	ID          string       `json:"id"`
	Mode        MeterMode    `json:"mode"`
	ComponentID string       `json:"componentId,omitempty"`
	ARef        *TerminalRef `json:"aRef,omitempty"`
	BRef        *TerminalRef `json:"bRef,omitempty"`
	X           float64      `json:"x"`
	Y           float64      `json:"y"`
	Value       *float64     `json:"value,omitempty"`
	Unit        string       `json:"unit"`
}

// CanvasSize is the drawable area in canvas units.
type CanvasSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

const (
	minCanvasWidth  = 400
	minCanvasHeight = 300
)

// FitCanvas snaps a requested size to the grid and enforces the minimum.
func FitCanvas(width, height float64) CanvasSize {
	return CanvasSize{
		Width:  max(minCanvasWidth, Snap(width)),
		Height: max(minCanvasHeight, Snap(height)),
	}
}

// Snapshot is the serializable topology: the history journal entry, the
// persistence payload and the body of every solver request.
type Snapshot struct {
	Components   []Component `json:"components"`
	Wires        []Wire      `json:"wires"`
	Meters       []Meter     `json:"meters"`
	CanvasSize   *CanvasSize `json:"canvasSize"`
	WireDefaults WireStyle   `json:"wireDefaults"`
}

// TimerState is the solver-owned progress of a time-driven component. It is
// written back into the component after each synchronization so the next
// request carries it.
type TimerState struct {
	Running      bool   `json:"running,omitempty"`
	StartAt      *int64 `json:"startAt,omitempty"`
	OutputClosed bool   `json:"outputClosed,omitempty"`
	RemainingMs  int64  `json:"remainingMs,omitempty"`
}
