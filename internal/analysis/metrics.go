package analysis

import (
	"math"

	"github.com/san-kum/beamsim/internal/track"
)

// Metric accumulates one scalar over a run history.
type Metric interface {
	Name() string
	Observe(rec track.Record)
	Value() float64
	Reset()
}

// Apply feeds a history through every metric and collects the values by
// name.
func Apply(history []track.Record, ms ...Metric) map[string]float64 {
	for _, rec := range history {
		for _, m := range ms {
			m.Observe(rec)
		}
	}
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

// MaxEnvelope tracks the largest rms beam size seen in one plane.
type MaxEnvelope struct {
	name  string
	plane Plane
	max   float64
}

func NewMaxEnvelope(p Plane) *MaxEnvelope {
	return &MaxEnvelope{name: "max_envelope_" + p.String(), plane: p}
}

func (m *MaxEnvelope) Name() string { return m.name }

func (m *MaxEnvelope) Observe(rec track.Record) {
	if rec.State == nil {
		return
	}
	m.max = math.Max(m.max, Size(rec.State.Moment1Env(), m.plane))
}

func (m *MaxEnvelope) Value() float64 { return m.max }

func (m *MaxEnvelope) Reset() { m.max = 0 }

// EnergyGain reports the reference kinetic-energy change from the first
// observed record to the last, eV/u.
type EnergyGain struct {
	name    string
	initial float64
	current float64
	samples int
}

func NewEnergyGain() *EnergyGain {
	return &EnergyGain{name: "energy_gain"}
}

func (m *EnergyGain) Name() string { return m.name }

func (m *EnergyGain) Observe(rec track.Record) {
	if rec.State == nil {
		return
	}
	if m.samples == 0 {
		m.initial = rec.State.Ref.IonEk
	}
	m.current = rec.State.Ref.IonEk
	m.samples++
}

func (m *EnergyGain) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.current - m.initial
}

func (m *EnergyGain) Reset() {
	m.initial = 0
	m.current = 0
	m.samples = 0
}

// CentroidDrift tracks the largest combined-centroid excursion in one
// plane, mm.
type CentroidDrift struct {
	name  string
	plane Plane
	max   float64
}

func NewCentroidDrift(p Plane) *CentroidDrift {
	return &CentroidDrift{name: "centroid_drift_" + p.String(), plane: p}
}

func (m *CentroidDrift) Name() string { return m.name }

func (m *CentroidDrift) Observe(rec track.Record) {
	if rec.State == nil {
		return
	}
	x := rec.State.Moment0Env()[m.plane.Index()]
	m.max = math.Max(m.max, math.Abs(x))
}

func (m *CentroidDrift) Value() float64 { return m.max }

func (m *CentroidDrift) Reset() { m.max = 0 }
