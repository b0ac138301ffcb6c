package track

import (
	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/phys"
)

// InitialState materializes the beam a source element describes: one charge
// state per IonZs entry at the lattice reference energy, with the declared
// initial moments. Missing moment tables start the beam on axis.
func InitialState(lat *lattice.Lattice) (*beam.State, error) {
	if len(lat.IonZs) == 0 {
		return nil, beam.ErrNoChargeStates
	}

	s := &beam.State{
		SampleLambda: phys.SampleLambda(lat.SampleFreq),
		Ref: beam.Particle{
			IonZ:  lat.IonZs[0],
			IonEk: lat.IonEk,
			IonEs: lat.IonEs,
		},
		States: make([]beam.ChargeState, len(lat.IonZs)),
	}
	for i, z := range lat.IonZs {
		cs := &s.States[i]
		cs.Particle = beam.Particle{
			IonZ:  z,
			IonEk: lat.IonEk,
			IonEs: lat.IonEs,
		}
		if i < len(lat.NCharge) {
			cs.IonQ = lat.NCharge[i]
		}
		if i < len(lat.Moment0) {
			cs.Moment0 = lat.Moment0[i]
		} else {
			cs.Moment0[beam.IndexOne] = 1
		}
		if i < len(lat.Moment1) {
			cs.Moment1 = lat.Moment1[i]
		}
	}
	return s, nil
}
