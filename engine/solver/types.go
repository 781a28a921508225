// Package solver talks to the external circuit solver and measurement
// service. The service is stateless: every request carries the whole
// topology. Transports exist for HTTP, NATS and gRPC.
package solver

import (
	"context"
	"math"
	"time"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
)

// Client is a solver transport.
type Client interface {
	Simulate(ctx context.Context, req Request) (*Result, error)
	Measure(ctx context.Context, req MeasureRequest) (Measurement, error)
}

// Request is a simulation request: the topology plus the wall-clock time in
// epoch milliseconds.
type Request struct {
	Components   []circuit.Component `json:"components"`
	Wires        []circuit.Wire      `json:"wires"`
	Meters       []circuit.Meter     `json:"meters"`
	CanvasSize   *circuit.CanvasSize `json:"canvasSize"`
	WireDefaults circuit.WireStyle   `json:"wireDefaults"`
	SimTime      int64               `json:"simTime"`
}

// NewRequest builds a request from a snapshot taken at now. The snapshot is
// used as is; callers pass a copy they no longer mutate.
func NewRequest(s circuit.Snapshot, now time.Time) Request {
	return Request{
		Components:   s.Components,
		Wires:        s.Wires,
		Meters:       s.Meters,
		CanvasSize:   s.CanvasSize,
		WireDefaults: s.WireDefaults,
		SimTime:      now.UnixMilli(),
	}
}

// MeasureRequest asks for one meter reading against the given topology.
type MeasureRequest struct {
	Components   []circuit.Component  `json:"components"`
	Wires        []circuit.Wire       `json:"wires"`
	Meters       []circuit.Meter      `json:"meters"`
	CanvasSize   *circuit.CanvasSize  `json:"canvasSize"`
	WireDefaults circuit.WireStyle    `json:"wireDefaults"`
	Mode         circuit.MeterMode    `json:"mode"`
	ComponentID  string               `json:"componentId,omitempty"`
	ARef         *circuit.TerminalRef `json:"aRef,omitempty"`
	BRef         *circuit.TerminalRef `json:"bRef,omitempty"`
}

// NewMeasureRequest addresses m against snapshot s.
func NewMeasureRequest(s circuit.Snapshot, m circuit.Meter) MeasureRequest {
	req := MeasureRequest{
		Components:   s.Components,
		Wires:        s.Wires,
		Meters:       s.Meters,
		CanvasSize:   s.CanvasSize,
		WireDefaults: s.WireDefaults,
		Mode:         m.Mode,
	}
	if m.Mode.ComponentScoped() {
		req.ComponentID = m.ComponentID
	} else {
		req.ARef, req.BRef = m.ARef, m.BRef
	}
	return req
}

// Measurement is a meter reading. A nil Value means the service had nothing
// to report for the quantity.
type Measurement struct {
	Value *float64 `json:"value"`
	Error string   `json:"error,omitempty"`
}

// Complex is an AC phasor.
type Complex struct {
	Re float64 `json:"re"`
	Im float64 `json:"im"`
}

// Abs returns the magnitude of c.
func (c Complex) Abs() float64 { return math.Hypot(c.Re, c.Im) }

// Sub returns c - d.
func (c Complex) Sub(d Complex) Complex { return Complex{Re: c.Re - d.Re, Im: c.Im - d.Im} }

// Solution holds node potentials and the terminal-to-node map.
type Solution struct {
	NodeVoltages   []float64      `json:"nodeVoltages"`
	TerminalNodes  map[string]int `json:"terminalNodes"`
	ACNodeVoltages []Complex      `json:"acNodeVoltages"`
}

// DomainInfo carries per-analysis diagnostics.
type DomainInfo struct {
	Nodes         int  `json:"nodes"`
	Sources       int  `json:"sources"`
	Elements      int  `json:"elements"`
	Floating      int  `json:"floating"`
	Inactive      int  `json:"inactive"`
	Active        int  `json:"active"`
	VirtualGround bool `json:"virtualGround"`
}

// Empty reports whether the domain was not analysed.
func (d *DomainInfo) Empty() bool { return d == nil || *d == DomainInfo{} }

// DebugInfo is forwarded unchanged for display.
type DebugInfo struct {
	DC *DomainInfo `json:"dc,omitempty"`
	AC *DomainInfo `json:"ac,omitempty"`
}

// Result is a solver response. It is read, never modified, once received.
type Result struct {
	Solution          Solution                      `json:"solution"`
	ContactorStates   map[string]bool               `json:"contactorStates"`
	TimerStates       map[string]circuit.TimerState `json:"timerStates"`
	LampLit           map[string]bool               `json:"lampLit"`
	MotorRunning      map[string]bool               `json:"motorRunning"`
	Motor3phDirection map[string]string             `json:"motor3phDirection"`
	Faults            map[string]string             `json:"faults"`
	SolveErrors       map[string]string             `json:"solveErrors"`
	DebugInfo         DebugInfo                     `json:"debugInfo"`
}
