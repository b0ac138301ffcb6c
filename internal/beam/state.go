// Package beam defines the moment representation of a multi charge state
// ion beam: a first-moment centroid and a second-moment envelope matrix per
// charge state, plus the reference particle that anchors phase and energy
// bookkeeping.
package beam

import (
	"math"

	"github.com/san-kum/beamsim/internal/linalg"
)

// Phase-space component indexes of a centroid vector.
const (
	IndexX = iota
	IndexPX
	IndexY
	IndexPY
	IndexPhi
	IndexEk
	IndexOne
)

// ChargeState carries the tracked moments of one charge species. Moment0 is
// the centroid (mm, rad, mm, rad, rad, MeV/u, 1), Moment1 the centered
// second-moment envelope in the same units squared.
type ChargeState struct {
	Particle
	Moment0 linalg.Vec
	Moment1 linalg.Mat
}

// State is a full beam snapshot between lattice elements.
type State struct {
	// Pos is the path length from the lattice start in meters.
	Pos float64

	// SampleLambda is the RF sample wavelength in mm, fixed at the source.
	SampleLambda float64

	// Ref is the reference particle. Its energy and phase evolve only in
	// accelerating elements.
	Ref Particle

	// States holds one entry per charge state, in lattice declaration
	// order. Association across elements is by IonZ, not by index.
	States []ChargeState

	// LastCaviPhi0 is the driven phase of the most recent RF cavity in
	// degrees.
	LastCaviPhi0 float64
}

// Clone returns a deep copy. Vec and Mat are value arrays, so copying the
// slice is enough.
func (s *State) Clone() *State {
	c := *s
	c.States = make([]ChargeState, len(s.States))
	copy(c.States, s.States)
	return &c
}

// Find returns the charge state with matching IonZ, or nil. Keys originate
// in lattice files, so a small tolerance absorbs decimal round-trips.
func (s *State) Find(ionZ float64) *ChargeState {
	for i := range s.States {
		if math.Abs(s.States[i].IonZ-ionZ) < 1e-10 {
			return &s.States[i]
		}
	}
	return nil
}

// TotalWeight returns the summed macro-particle weight of all charge states.
func (s *State) TotalWeight() float64 {
	w := 0.0
	for i := range s.States {
		w += s.States[i].IonQ
	}
	return w
}

// Moment0Env returns the weight-averaged centroid over all charge states.
func (s *State) Moment0Env() linalg.Vec {
	var env linalg.Vec
	w := s.TotalWeight()
	if w == 0 {
		return env
	}
	for i := range s.States {
		env = env.Add(s.States[i].Moment0.Scale(s.States[i].IonQ))
	}
	return env.Scale(1 / w)
}

// Moment1Env returns the combined envelope: the weighted mean of the
// per-state envelopes plus the spread of the per-state centroids about the
// combined centroid.
func (s *State) Moment1Env() linalg.Mat {
	var env linalg.Mat
	w := s.TotalWeight()
	if w == 0 {
		return env
	}
	m0 := s.Moment0Env()
	for i := range s.States {
		d := s.States[i].Moment0.Sub(m0)
		part := s.States[i].Moment1.Add(d.Outer(d))
		env = env.Add(part.Scale(s.States[i].IonQ))
	}
	return env.Scale(1 / w)
}

// Moment0RMS returns the rms beam size per component, the square root of
// the combined envelope diagonal.
func (s *State) Moment0RMS() linalg.Vec {
	d := s.Moment1Env().Diagonal()
	for i := range d {
		d[i] = math.Sqrt(d[i])
	}
	return d
}

// IsValid reports whether every moment and scalar is finite.
func (s *State) IsValid() bool {
	if math.IsNaN(s.Pos) || math.IsNaN(s.Ref.IonEk) || math.IsNaN(s.Ref.Phis) {
		return false
	}
	for i := range s.States {
		cs := &s.States[i]
		if math.IsNaN(cs.IonEk) || math.IsNaN(cs.Phis) {
			return false
		}
		if !cs.Moment0.IsValid() || !cs.Moment1.IsValid() {
			return false
		}
	}
	return true
}
