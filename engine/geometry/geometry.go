// Package geometry resolves component terminals and footprints. Every
// function is pure: the same component always yields the same points.
package geometry

import (
	"math"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
)

// Footprint constants in canvas units.
const (
	ComponentW    = 80
	ComponentH    = 40
	NodeSize      = 20
	ContactorW    = 120
	ContactorMinH = 70
)

// Hit-test tolerances.
const (
	TerminalHitRadius  = 8
	WireHitDistance    = 6
	WirePointHitRadius = 8
)

const half = ComponentW / 2

// Layout is the local-frame geometry of a contactor.
type Layout struct {
	PoleCount    int
	PoleSpacing  float64
	ContactLeft  float64
	ContactRight float64
	AltOffset    float64
	Changeover   bool
	CoilTermX    float64
	CoilTermY    float64
	PolesStartY  float64
	Width        float64
	Height       float64
}

// PoleY returns the local vertical offset of pole i.
func (l Layout) PoleY(i int) float64 {
	return l.PolesStartY + float64(i)*l.PoleSpacing
}

// ContactorLayout computes pole spacing and offsets from the pole count and
// contact type. Components of other kinds get the single-pole standard layout.
func ContactorLayout(c circuit.Component) Layout {
	poles := 1
	changeover := false
	if p, ok := c.Props.(*circuit.ContactorProps); ok {
		if p.Poles != nil {
			poles = len(p.Poles)
		}
		changeover = p.ContactType == circuit.ContactChangeover
	}
	l := Layout{
		PoleCount:    poles,
		PoleSpacing:  18,
		ContactLeft:  15,
		ContactRight: 55,
		Changeover:   changeover,
		CoilTermX:    -50,
		CoilTermY:    16,
		Width:        ContactorW,
	}
	if changeover {
		l.PoleSpacing = 26
		l.AltOffset = 7
	}
	l.PolesStartY = -(float64(poles-1) * l.PoleSpacing) / 2
	l.Height = math.Max(ContactorMinH, float64(poles)*l.PoleSpacing+34)
	return l
}

// Rotate turns p about the origin by deg, which is normalized to a quarter
// turn first. Quarter turns are exact.
func Rotate(p circuit.Point, deg int) circuit.Point {
	switch circuit.NormalizeRotation(deg) {
	case 90:
		return circuit.Point{X: -p.Y, Y: p.X}
	case 180:
		return circuit.Point{X: -p.X, Y: -p.Y}
	case 270:
		return circuit.Point{X: p.Y, Y: -p.X}
	default:
		return p
	}
}

// Template returns the terminal positions of c in its local, unrotated frame.
// Unknown kinds use the two-terminal horizontal template.
func Template(c circuit.Component) []circuit.Point {
	switch c.Type {
	case circuit.KindMotor3ph:
		return threePhase()
	case circuit.KindSwitchSPDT, circuit.KindTimeTimer:
		return []circuit.Point{{X: -half, Y: 0}, {X: half, Y: -12}, {X: half, Y: 12}}
	case circuit.KindTimer:
		return []circuit.Point{
			{X: -half, Y: -12},
			{X: -half, Y: 12},
			{X: half - 18, Y: 0},
			{X: half, Y: -12},
			{X: half, Y: 12},
		}
	case circuit.KindContactor:
		return contactorTemplate(ContactorLayout(c))
	case circuit.KindNode:
		return []circuit.Point{{X: 0, Y: -20}, {X: 0, Y: 20}, {X: -20, Y: 0}, {X: 20, Y: 0}}
	case circuit.KindGround:
		return []circuit.Point{{X: 0, Y: -16}}
	case circuit.KindVoltageSource:
		if p, ok := c.Props.(*circuit.SourceProps); ok && p.SupplyType == circuit.SupplyAC3 {
			if p.Connection == circuit.ConnectionDelta {
				return threePhase()
			}
			return []circuit.Point{{X: half, Y: -16}, {X: half, Y: 0}, {X: half, Y: 16}, {X: -half, Y: 0}}
		}
	}
	return []circuit.Point{{X: -half, Y: 0}, {X: half, Y: 0}}
}

func threePhase() []circuit.Point {
	return []circuit.Point{{X: -half, Y: -12}, {X: half, Y: 0}, {X: -half, Y: 12}}
}

func contactorTemplate(l Layout) []circuit.Point {
	n := 2
	if l.Changeover {
		n += 3 * l.PoleCount
	} else {
		n += 2 * l.PoleCount
	}
	pts := make([]circuit.Point, 0, n)
	pts = append(pts, circuit.Point{X: l.CoilTermX, Y: -l.CoilTermY}, circuit.Point{X: l.CoilTermX, Y: l.CoilTermY})
	for i := 0; i < l.PoleCount; i++ {
		y := l.PoleY(i)
		pts = append(pts, circuit.Point{X: l.ContactLeft, Y: y})
		if l.Changeover {
			pts = append(pts,
				circuit.Point{X: l.ContactRight, Y: y - l.AltOffset},
				circuit.Point{X: l.ContactRight, Y: y + l.AltOffset})
		} else {
			pts = append(pts, circuit.Point{X: l.ContactRight, Y: y})
		}
	}
	return pts
}

// Terminals returns the absolute terminal positions of c in index order.
func Terminals(c circuit.Component) []circuit.Point {
	pts := Template(c)
	for i, p := range pts {
		r := Rotate(p, c.Rotation)
		pts[i] = circuit.Point{X: c.X + r.X, Y: c.Y + r.Y}
	}
	return pts
}

// Terminal returns the absolute position of terminal index of c.
func Terminal(c circuit.Component, index int) (circuit.Point, bool) {
	pts := Terminals(c)
	if index < 0 || index >= len(pts) {
		return circuit.Point{}, false
	}
	return pts[index], true
}

// TerminalCount returns how many terminals c exposes.
func TerminalCount(c circuit.Component) int { return len(Template(c)) }

// Size returns the rotated footprint of c.
func Size(c circuit.Component) (w, h float64) {
	switch c.Type {
	case circuit.KindNode:
		w, h = NodeSize, NodeSize
	case circuit.KindContactor:
		l := ContactorLayout(c)
		w, h = l.Width, l.Height
	default:
		w, h = ComponentW, ComponentH
	}
	if circuit.NormalizeRotation(c.Rotation)%180 != 0 {
		w, h = h, w
	}
	return w, h
}

// Contains reports whether p lies inside the footprint of c, edges included.
func Contains(c circuit.Component, p circuit.Point) bool {
	w, h := Size(c)
	return p.X >= c.X-w/2 && p.X <= c.X+w/2 && p.Y >= c.Y-h/2 && p.Y <= c.Y+h/2
}

// Distance is the Euclidean distance between a and b.
func Distance(a, b circuit.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// SegmentDistance is the distance from p to the closest point of segment ab.
// A degenerate segment measures to a.
func SegmentDistance(p, a, b circuit.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return Distance(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return Distance(p, circuit.Point{X: a.X + t*dx, Y: a.Y + t*dy})
}
