package circuit

// Preset is a library entry: a variant name bound to a kind and its default
// props.
type Preset struct {
	Variant  string
	Kind     Kind
	Label    string
	Group    string
	defaults func() Props
}

// Defaults returns a fresh copy of the preset's default props.
func (p Preset) Defaults() Props { return p.defaults() }

var library = []Preset{
	{Variant: "voltage_source", Kind: KindVoltageSource, Label: "Voltage source", Group: "Sources", defaults: func() Props {
		return &SourceProps{Value: 12, SupplyType: SupplyDC, Frequency: 50, Connection: ConnectionY, Neutral: true}
	}},
	{Variant: "ground", Kind: KindGround, Label: "Ground", Group: "Sources", defaults: func() Props {
		return &GroundProps{}
	}},
	{Variant: "lamp", Kind: KindLamp, Label: "Lamp", Group: "Loads", defaults: func() Props {
		return &LampProps{Value: 80, Threshold: 6, RatedVoltage: 12, LitColor: "#f6c453"}
	}},
	{Variant: "motor", Kind: KindMotor, Label: "Motor", Group: "Loads", defaults: func() Props {
		return &MotorProps{Value: 20, StartVoltage: 6}
	}},
	{Variant: "motor_3ph", Kind: KindMotor3ph, Label: "Three-phase motor", Group: "Loads", defaults: func() Props {
		return &Motor3phProps{Value: 12, StartVoltage: 200, Connection: ConnectionY}
	}},
	{Variant: "resistor", Kind: KindResistor, Label: "Resistor", Group: "Loads", defaults: func() Props {
		return &ResistorProps{Value: 100}
	}},
	{Variant: "capacitor", Kind: KindCapacitor, Label: "Capacitor", Group: "Loads", defaults: func() Props {
		return &CapacitorProps{Value: 1e-6}
	}},
	{Variant: "inductor", Kind: KindInductor, Label: "Inductor", Group: "Loads", defaults: func() Props {
		return &InductorProps{Value: 0.1}
	}},
	{Variant: "switch", Kind: KindSwitch, Label: "Switch", Group: "Control", defaults: func() Props {
		return &SwitchProps{Closed: true}
	}},
	{Variant: "push_button", Kind: KindPushButton, Label: "Push button", Group: "Control", defaults: func() Props {
		return &PushButtonProps{}
	}},
	{Variant: "switch_spdt", Kind: KindSwitchSPDT, Label: "Two-way switch", Group: "Control", defaults: func() Props {
		return &SPDTProps{Position: "up"}
	}},
	{Variant: "timer", Kind: KindTimer, Label: "Timer", Group: "Control", defaults: func() Props {
		return &TimerProps{DelayMs: 3000, PullInVoltage: 9, CoilResistance: 120}
	}},
	{Variant: "time_timer", Kind: KindTimeTimer, Label: "Clock timer", Group: "Control", defaults: func() Props {
		return &TimeTimerProps{StartTime: "08:00", EndTime: "17:00"}
	}},
	{Variant: "contactor_standard", Kind: KindContactor, Label: "Contactor", Group: "Control", defaults: func() Props {
		return &ContactorProps{CoilResistance: 120, PullInVoltage: 9, CoilRatedVoltage: 12, ContactType: ContactStandard, Poles: []Pole{PoleNO}}
	}},
	{Variant: "contactor_changeover", Kind: KindContactor, Label: "Changeover contactor", Group: "Control", defaults: func() Props {
		return &ContactorProps{CoilResistance: 120, PullInVoltage: 9, CoilRatedVoltage: 12, ContactType: ContactChangeover, Poles: []Pole{PoleNO}}
	}},
	{Variant: "node", Kind: KindNode, Label: "Junction", Group: "Nodes", defaults: func() Props {
		return &NodeProps{}
	}},
}

var (
	presetsByVariant = map[string]Preset{}
	presetsByKind    = map[Kind]Preset{}
)

func init() {
	for _, p := range library {
		presetsByVariant[p.Variant] = p
		if _, ok := presetsByKind[p.Kind]; !ok {
			presetsByKind[p.Kind] = p
		}
	}
}

// Lookup returns the preset registered under variant.
func Lookup(variant string) (Preset, bool) {
	p, ok := presetsByVariant[variant]
	return p, ok
}

// Presets returns the library in display order.
func Presets() []Preset {
	out := make([]Preset, len(library))
	copy(out, library)
	return out
}

// NewProps returns the default props for kind. Unknown kinds get empty
// generic props.
func NewProps(kind Kind) Props {
	if p, ok := presetsByKind[kind]; ok {
		return p.Defaults()
	}
	return &GenericProps{kind: kind, Fields: map[string]any{"name": ""}}
}

// DefaultVariant picks the library variant for a component stored without
// one.
func DefaultVariant(kind Kind, props Props) string {
	if kind == KindContactor {
		if cp, ok := props.(*ContactorProps); ok && cp.ContactType == ContactChangeover {
			return "contactor_changeover"
		}
		return "contactor_standard"
	}
	if p, ok := presetsByKind[kind]; ok {
		return p.Variant
	}
	return string(kind)
}

var shortLabels = map[Kind]string{
	KindResistor:      "R",
	KindCapacitor:     "C",
	KindInductor:      "L",
	KindSwitch:        "S",
	KindPushButton:    "PB",
	KindSwitchSPDT:    "S",
	KindVoltageSource: "V",
	KindMotor:         "M",
	KindMotor3ph:      "M3",
	KindLamp:          "L",
	KindContactor:     "K",
	KindTimer:         "T",
	KindTimeTimer:     "TT",
	KindNode:          "N",
	KindGround:        "GND",
}

// ShortLabel returns the schematic designator prefix for kind.
func ShortLabel(kind Kind) string {
	if s, ok := shortLabels[kind]; ok {
		return s
	}
	return "?"
}
