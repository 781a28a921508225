package derive

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/solver"
)

// Status levels. Summarize reports the level of the highest-priority problem:
// partial-solve errors, then network-scoped errors, then component faults.
// StatusError also marks a synchronization that failed outright.
const (
	StatusOK      = "ok"
	StatusFault   = "fault"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Summary is the user-visible outcome of one synchronization.
type Summary struct {
	Status  string   `json:"status"`
	Text    string   `json:"summary"`
	Details []string `json:"details"`
}

// networkPrefix marks solve errors that concern a whole network rather than
// a component.
const networkPrefix = "__"

// Summarize reports the most important problem in res. Partial-solve errors
// outrank network-scoped errors, which outrank component faults.
func Summarize(res *solver.Result, components, wires int) Summary {
	if res == nil {
		return Summary{Status: StatusError, Text: "No result.", Details: []string{}}
	}
	var partial, network []string
	for _, k := range sortedKeys(res.SolveErrors) {
		if strings.HasPrefix(k, networkPrefix) {
			network = append(network, res.SolveErrors[k])
		} else {
			partial = append(partial, res.SolveErrors[k])
		}
	}
	var faults []string
	for _, k := range sortedKeys(res.Faults) {
		faults = append(faults, res.Faults[k])
	}

	s := Summary{Status: StatusOK, Text: "Simulation updated.", Details: []string{}}
	switch {
	case len(partial) > 0:
		s.Status, s.Text = StatusPartial, "Partial simulation: "+partial[0]
	case len(network) > 0:
		s.Status, s.Text = StatusError, "Simulation: "+network[0]
	case len(faults) > 0:
		s.Status, s.Text = StatusFault, "Fault: "+faults[0]
	}

	if len(partial) > 0 {
		s.Details = append(s.Details, "Partial errors: "+strings.Join(partial, "; "))
	}
	if len(network) > 0 {
		s.Details = append(s.Details, "Network errors: "+strings.Join(network, "; "))
	}
	if len(faults) > 0 {
		s.Details = append(s.Details, "Component faults: "+strings.Join(faults, "; "))
	}
	if d := res.DebugInfo.DC; !d.Empty() {
		s.Details = append(s.Details, domainLine("DC", d))
	}
	if d := res.DebugInfo.AC; !d.Empty() {
		s.Details = append(s.Details, domainLine("AC", d))
	}
	if len(s.Details) == 0 {
		s.Details = append(s.Details, fmt.Sprintf("Components: %d, wires: %d", components, wires))
	}
	return s
}

// Failure reports a synchronization that produced no result.
func Failure(err error) Summary {
	text := "Simulation failed."
	if err != nil {
		text = err.Error()
	}
	detail := "No response from the solver service."
	var se *solver.ServiceError
	if errors.As(err, &se) {
		detail = fmt.Sprintf("The solver rejected the request (status %d).", se.Status)
	}
	return Summary{Status: StatusError, Text: text, Details: []string{detail}}
}

func domainLine(name string, d *solver.DomainInfo) string {
	vg := "no"
	if d.VirtualGround {
		vg = "yes"
	}
	return fmt.Sprintf("%s: nodes=%d, sources=%d, floating=%d, inactive=%d, virtual ground=%s",
		name, d.Nodes, d.Sources, d.Floating, d.Inactive, vg)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatReading renders a meter's cached value for display.
func FormatReading(m circuit.Meter) string {
	if m.Value == nil {
		return "--"
	}
	if math.IsNaN(*m.Value) {
		return "N/A"
	}
	return strings.TrimSpace(fmt.Sprintf("%.3f %s", *m.Value, m.Unit))
}
