package circuit

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Props is the type-specific attribute bag of a component. Each Kind has one
// concrete implementation; unknown kinds decode into *GenericProps so that
// snapshots from newer editors survive a round trip.
type Props interface {
	Kind() Kind
	Label() string
	Clone() Props
}

// Timed is implemented by props that carry solver-owned timer progress.
type Timed interface {
	Props
	State() TimerState
	SetState(TimerState)
}

// Meta holds the fields every component carries.
type Meta struct {
	Name string `json:"name"`
}

// Label returns the user-assigned name.
func (m Meta) Label() string { return m.Name }

// Supply is the excitation of a voltage source.
type Supply string

const (
	SupplyDC  Supply = "DC"
	SupplyAC  Supply = "AC"
	SupplyAC3 Supply = "AC3"
)

// Connection is a three-phase winding arrangement.
type Connection string

const (
	ConnectionY     Connection = "Y"
	ConnectionDelta Connection = "Delta"
)

// ContactType selects the contactor pole layout.
type ContactType string

const (
	ContactStandard   ContactType = "standard"
	ContactChangeover ContactType = "changeover"
)

// Pole is the resting state of one contactor pole.
type Pole string

const (
	PoleNO Pole = "NO"
	PoleNC Pole = "NC"
)

type SourceProps struct {
	Meta
	Value      float64    `json:"value"`
	SupplyType Supply     `json:"supplyType"`
	Frequency  float64    `json:"frequency"`
	Connection Connection `json:"connection"`
	Neutral    bool       `json:"neutral"`
}

func (p *SourceProps) Kind() Kind   { return KindVoltageSource }
func (p *SourceProps) Clone() Props { c := *p; return &c }

type GroundProps struct{ Meta }

func (p *GroundProps) Kind() Kind   { return KindGround }
func (p *GroundProps) Clone() Props { c := *p; return &c }

type NodeProps struct{ Meta }

func (p *NodeProps) Kind() Kind   { return KindNode }
func (p *NodeProps) Clone() Props { c := *p; return &c }

type LampProps struct {
	Meta
	Value        float64 `json:"value"`
	Threshold    float64 `json:"threshold"`
	RatedVoltage float64 `json:"ratedVoltage"`
	LitColor     string  `json:"litColor"`
}

func (p *LampProps) Kind() Kind   { return KindLamp }
func (p *LampProps) Clone() Props { c := *p; return &c }

func (p *LampProps) backfill(present map[string]json.RawMessage) {
	if _, ok := present["ratedVoltage"]; ok {
		return
	}
	if _, ok := present["threshold"]; ok {
		p.RatedVoltage = p.Threshold
		return
	}
	p.RatedVoltage = 12
}

type MotorProps struct {
	Meta
	Value        float64 `json:"value"`
	StartVoltage float64 `json:"startVoltage"`
}

func (p *MotorProps) Kind() Kind   { return KindMotor }
func (p *MotorProps) Clone() Props { c := *p; return &c }

type Motor3phProps struct {
	Meta
	Value        float64    `json:"value"`
	StartVoltage float64    `json:"startVoltage"`
	Connection   Connection `json:"connection"`
}

func (p *Motor3phProps) Kind() Kind   { return KindMotor3ph }
func (p *Motor3phProps) Clone() Props { c := *p; return &c }

type ResistorProps struct {
	Meta
	Value float64 `json:"value"`
}

func (p *ResistorProps) Kind() Kind   { return KindResistor }
func (p *ResistorProps) Clone() Props { c := *p; return &c }

type CapacitorProps struct {
	Meta
	Value float64 `json:"value"`
}

func (p *CapacitorProps) Kind() Kind   { return KindCapacitor }
func (p *CapacitorProps) Clone() Props { c := *p; return &c }

type InductorProps struct {
	Meta
	Value float64 `json:"value"`
}

func (p *InductorProps) Kind() Kind   { return KindInductor }
func (p *InductorProps) Clone() Props { c := *p; return &c }

type SwitchProps struct {
	Meta
	Closed bool `json:"closed"`
}

func (p *SwitchProps) Kind() Kind   { return KindSwitch }
func (p *SwitchProps) Clone() Props { c := *p; return &c }

type PushButtonProps struct {
	Meta
	Closed bool `json:"closed"`
}

func (p *PushButtonProps) Kind() Kind   { return KindPushButton }
func (p *PushButtonProps) Clone() Props { c := *p; return &c }

// SPDTProps describes a two-way switch; Position is "up" or "down".
type SPDTProps struct {
	Meta
	Position string `json:"position"`
}

func (p *SPDTProps) Kind() Kind   { return KindSwitchSPDT }
func (p *SPDTProps) Clone() Props { c := *p; return &c }

// TimerProps describes a coil-driven delay relay.
type TimerProps struct {
	Meta
	DelayMs        float64    `json:"delayMs"`
	PullInVoltage  float64    `json:"pullInVoltage"`
	CoilResistance float64    `json:"coilResistance"`
	Loop           bool       `json:"loop"`
	InitialClosed  bool       `json:"initialClosed"`
	TimerState     TimerState `json:"timerState"`
}

func (p *TimerProps) Kind() Kind { return KindTimer }
func (p *TimerProps) Clone() Props {
	c := *p
	c.TimerState = p.TimerState.clone()
	return &c
}
func (p *TimerProps) State() TimerState     { return p.TimerState.clone() }
func (p *TimerProps) SetState(s TimerState) { p.TimerState = s.clone() }

// TimeTimerProps describes a time-of-day switch active between StartTime and
// EndTime (both "HH:MM").
type TimeTimerProps struct {
	Meta
	StartTime  string     `json:"startTime"`
	EndTime    string     `json:"endTime"`
	TimerState TimerState `json:"timerState"`
}

func (p *TimeTimerProps) Kind() Kind { return KindTimeTimer }
func (p *TimeTimerProps) Clone() Props {
	c := *p
	c.TimerState = p.TimerState.clone()
	return &c
}
func (p *TimeTimerProps) State() TimerState     { return p.TimerState.clone() }
func (p *TimeTimerProps) SetState(s TimerState) { p.TimerState = s.clone() }

func (p *TimeTimerProps) backfill(map[string]json.RawMessage) {
	if p.StartTime == "" {
		p.StartTime = "08:00"
	}
	if p.EndTime == "" {
		p.EndTime = "17:00"
	}
}

// ContactorProps describes a coil with a variable number of poles.
type ContactorProps struct {
	Meta
	CoilResistance   float64     `json:"coilResistance"`
	PullInVoltage    float64     `json:"pullInVoltage"`
	CoilRatedVoltage float64     `json:"coilRatedVoltage"`
	ContactType      ContactType `json:"contactType"`
	Poles            []Pole      `json:"poles"`
}

func (p *ContactorProps) Kind() Kind { return KindContactor }
func (p *ContactorProps) Clone() Props {
	c := *p
	c.Poles = make([]Pole, len(p.Poles))
	copy(c.Poles, p.Poles)
	return &c
}

func (p *ContactorProps) backfill(present map[string]json.RawMessage) {
	if _, ok := present["coilRatedVoltage"]; !ok {
		p.CoilRatedVoltage = 12
		if _, ok := present["pullInVoltage"]; ok {
			p.CoilRatedVoltage = p.PullInVoltage
		}
	}
	if p.ContactType == "" {
		p.ContactType = ContactStandard
	}
	if p.Poles == nil {
		p.Poles = []Pole{PoleNO}
	}
}

// GenericProps keeps the raw attributes of a component kind this build does
// not know about.
type GenericProps struct {
	kind   Kind
	Fields map[string]any
}

func (p *GenericProps) Kind() Kind { return p.kind }

func (p *GenericProps) Label() string {
	name, _ := p.Fields["name"].(string)
	return name
}

func (p *GenericProps) Clone() Props {
	fields, _ := cloneValue(p.Fields).(map[string]any)
	return &GenericProps{kind: p.kind, Fields: fields}
}

func (p *GenericProps) MarshalJSON() ([]byte, error) {
	if p.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Fields)
}

func (p *GenericProps) UnmarshalJSON(data []byte) error {
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if _, ok := fields["name"]; !ok {
		fields["name"] = ""
	}
	p.Fields = fields
	return nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func (s TimerState) clone() TimerState {
	if s.StartAt != nil {
		at := *s.StartAt
		s.StartAt = &at
	}
	return s
}

// backfiller is implemented by props with legacy defaults that depend on
// which fields were present in the stored form.
type backfiller interface {
	backfill(present map[string]json.RawMessage)
}

// DecodeProps decodes stored props for kind on top of the kind's defaults, so
// every field the kind requires is present afterwards. Fields of the wrong
// JSON type keep their default.
func DecodeProps(kind Kind, raw json.RawMessage) (Props, error) {
	p := NewProps(kind)
	present := map[string]json.RawMessage{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, p); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				return nil, fmt.Errorf("circuit: decode %s props: %w", kind, err)
			}
		}
		_ = json.Unmarshal(raw, &present)
	}
	if b, ok := p.(backfiller); ok {
		b.backfill(present)
	}
	return p, nil
}

// PatchProps merges a JSON object into a copy of p. Defaults the merge
// emptied are filled again, as on load.
func PatchProps(p Props, raw json.RawMessage) (Props, error) {
	next := p.Clone()
	if err := json.Unmarshal(raw, next); err != nil {
		return nil, fmt.Errorf("circuit: patch %s props: %w", p.Kind(), err)
	}
	merged, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("circuit: patch %s props: %w", p.Kind(), err)
	}
	return DecodeProps(p.Kind(), merged)
}

func (c *Component) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID       string          `json:"id"`
		Type     Kind            `json:"type"`
		Variant  string          `json:"variant"`
		X        float64         `json:"x"`
		Y        float64         `json:"y"`
		Rotation int             `json:"rotation"`
		Props    json.RawMessage `json:"props"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	props, err := DecodeProps(aux.Type, aux.Props)
	if err != nil {
		return err
	}
	*c = Component{
		ID:       aux.ID,
		Type:     aux.Type,
		Variant:  aux.Variant,
		X:        aux.X,
		Y:        aux.Y,
		Rotation: NormalizeRotation(aux.Rotation),
		Props:    props,
	}
	if c.Variant == "" {
		c.Variant = DefaultVariant(c.Type, props)
	}
	return nil
}

// NormalizeRotation maps any multiple of 90 into [0, 360). Other values snap
// to the nearest quarter turn.
func NormalizeRotation(deg int) int {
	q := deg / 90
	if r := deg % 90; r >= 45 {
		q++
	} else if r <= -45 {
		q--
	}
	return ((q%4 + 4) % 4) * 90
}
