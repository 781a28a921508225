package session

import (
	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/derive"
	"github.com/WessleyAI/wessley-schematic/engine/syncer"
)

// Reading is a meter's current readout.
type Reading struct {
	ID    string   `json:"id"`
	Value *float64 `json:"value"`
	Text  string   `json:"text"`
	Error string   `json:"error,omitempty"`
}

// Derived is everything a canvas needs to draw the simulation state.
type Derived struct {
	Simulating     bool              `json:"simulating"`
	Sync           syncer.State      `json:"sync"`
	Status         derive.Summary    `json:"status"`
	EnergizedWires map[string]bool   `json:"energizedWires"`
	LampLit        map[string]bool   `json:"lampLit"`
	MotorRunning   map[string]bool   `json:"motorRunning"`
	MotorDirection map[string]string `json:"motorDirection"`
	Contactors     map[string]bool   `json:"contactors"`
	PolesClosed    map[string][]bool `json:"polesClosed"`
	Throws         map[string][]int  `json:"throws"`
	TimerOutputs   map[string]bool   `json:"timerOutputs"`
	Faults         map[string]string `json:"faults"`
	Meters         []Reading         `json:"meters"`
}

// Derived evaluates the derived view against the current topology.
// Components without a result entry report off.
func (s *Session) Derived() Derived {
	st := s.engine.State()
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.view
	d := Derived{
		Simulating:     s.active,
		Sync:           st,
		Status:         s.status,
		EnergizedWires: v.Energized(resolvable(s)),
		LampLit:        map[string]bool{},
		MotorRunning:   map[string]bool{},
		MotorDirection: map[string]string{},
		Contactors:     map[string]bool{},
		PolesClosed:    map[string][]bool{},
		Throws:         map[string][]int{},
		TimerOutputs:   map[string]bool{},
		Faults:         map[string]string{},
		Meters:         []Reading{},
	}
	for _, c := range s.model.Components() {
		if msg, ok := v.Fault(c.ID); ok {
			d.Faults[c.ID] = msg
		}
		switch p := c.Props.(type) {
		case *circuit.LampProps:
			d.LampLit[c.ID] = v.LampLit(c.ID)
		case *circuit.MotorProps:
			d.MotorRunning[c.ID] = v.MotorRunning(c.ID)
		case *circuit.Motor3phProps:
			d.MotorRunning[c.ID] = v.MotorRunning(c.ID)
			d.MotorDirection[c.ID] = v.Direction(c.ID)
		case *circuit.TimerProps, *circuit.TimeTimerProps:
			d.TimerOutputs[c.ID] = v.TimerOutputClosed(c.ID)
		case *circuit.ContactorProps:
			d.Contactors[c.ID] = v.ContactorEnergized(c.ID)
			if p.ContactType == circuit.ContactChangeover {
				throws := make([]int, len(p.Poles))
				for i := range p.Poles {
					throws[i], _ = v.MadeThrow(c, i)
				}
				d.Throws[c.ID] = throws
			} else {
				closed := make([]bool, len(p.Poles))
				for i := range p.Poles {
					closed[i] = v.PoleClosed(c, i)
				}
				d.PolesClosed[c.ID] = closed
			}
		}
	}
	for _, mt := range s.model.Meters() {
		r := Reading{ID: mt.ID, Value: mt.Value, Text: derive.FormatReading(mt)}
		if msg, ok := s.meterErrors[mt.ID]; ok {
			r.Error, r.Text = msg, msg
		}
		d.Meters = append(d.Meters, r)
	}
	return d
}

func resolvable(s *Session) []circuit.Wire {
	var out []circuit.Wire
	for _, w := range s.model.Wires() {
		if s.model.Resolvable(w) {
			out = append(out, w)
		}
	}
	return out
}
