// Package derive computes values that depend on more than one decoded
// field, such as DC power and available capacity.
package derive

import "math"

// ModuleCapacity is the capacity in Ah contributed by one online module.
const ModuleCapacity = 94

// Paths names the inputs read from a flushed window and the outputs produced.
type Paths struct {
	Voltage       string
	Current       string
	ModulesOnline string
	StateOfCharge string

	Power             string
	InstalledCapacity string
	AvailableCapacity string
}

// DefaultPaths returns the paths used by the Victron battery service.
func DefaultPaths() Paths {
	return Paths{
		Voltage:           "/Dc/0/Voltage",
		Current:           "/Dc/0/Current",
		ModulesOnline:     "/System/NrOfModulesOnline",
		StateOfCharge:     "/Soc",
		Power:             "/Dc/0/Power",
		InstalledCapacity: "/InstalledCapacity",
		AvailableCapacity: "/Capacity",
	}
}

// State carries values between windows. Capacity and state of charge keep
// their last known value until a window reports a new one.
type State struct {
	InstalledCapacity int
	StateOfCharge     int
	Voltage           float64
	Current           float64
}

// Output is one derived value to publish.
type Output struct {
	Path  string
	Value float64
}

// Calculator applies the derivation rules to flushed windows.
type Calculator struct {
	paths Paths
}

// New creates a Calculator reading and writing the given paths.
func New(paths Paths) *Calculator {
	return &Calculator{paths: paths}
}

// Apply updates st from a flushed window and returns the derived outputs in
// publish order: power, installed capacity, available capacity. A key is
// only present when its inputs are known.
func (c *Calculator) Apply(flushed map[string]float64, st *State) []Output {
	var out []Output

	voltage, hasVoltage := flushed[c.paths.Voltage]
	current, hasCurrent := flushed[c.paths.Current]
	if hasVoltage {
		st.Voltage = voltage
	}
	if hasCurrent {
		st.Current = current
	}
	if hasVoltage && hasCurrent {
		// Ties go to the even watt.
		out = append(out, Output{Path: c.paths.Power, Value: math.RoundToEven(voltage * current)})
	}

	if modules, ok := flushed[c.paths.ModulesOnline]; ok {
		st.InstalledCapacity = int(modules) * ModuleCapacity
		out = append(out, Output{Path: c.paths.InstalledCapacity, Value: float64(st.InstalledCapacity)})
	}

	if soc, ok := flushed[c.paths.StateOfCharge]; ok {
		st.StateOfCharge = int(math.Round(soc))
	}

	if st.InstalledCapacity != 0 && st.StateOfCharge != 0 {
		out = append(out, Output{Path: c.paths.AvailableCapacity, Value: AvailableCapacity(st.InstalledCapacity, st.StateOfCharge)})
	}

	return out
}

// AvailableCapacity returns floor(installed * soc / 100).
func AvailableCapacity(installed, soc int) float64 {
	return math.Floor(float64(installed) * float64(soc) / 100)
}
